// cmd/tools/registry-check/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"resume-matcher/pkg/registry"
)

func main() {
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)
	validatePath := validateCmd.String("path", "", "Path to a registry file (default: the registry built into the binary)")

	listCmd := flag.NewFlagSet("list", flag.ExitOnError)
	listPath := listCmd.String("path", "", "Path to a registry file (default: the registry built into the binary)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "validate":
		validateCmd.Parse(os.Args[2:])
		reg, err := load(*validatePath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		if err := reg.Check(); err != nil {
			fmt.Printf("Registry validation failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Registry validation passed. Found %d activities.\n", len(reg.Activities))

	case "list":
		listCmd.Parse(os.Args[2:])
		reg, err := load(*listPath)
		if err != nil {
			fmt.Printf("Error loading registry: %v\n", err)
			os.Exit(1)
		}
		for _, a := range reg.Activities {
			fmt.Printf("%-26s timeout=%-4s retries=%d errors=%s\n",
				a.TaskType, a.Timeout, a.Retries, strings.Join(a.ErrorCodes, ","))
		}

	case "help":
		fallthrough
	default:
		help()
	}
}

func load(path string) (*registry.ActivityRegistry, error) {
	if path == "" {
		return registry.Default()
	}
	return registry.LoadRegistry(path)
}

func help() {
	fmt.Println(`
Usage: registry-check <command> [flags]

Commands:
  validate  Check ids, task types, timeouts and that every schema compiles
  list      Print the registered task types
  help      Show this help message

Examples:
  registry-check validate
  registry-check validate -path pkg/registry/activities.json
  registry-check list`)
}
