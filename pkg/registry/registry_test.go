// pkg/registry/registry_test.go
package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_ContainsMatchingActivities(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)

	for _, taskType := range []string{"bulk-match", "immediate-user-match", "fetch-applicant-matches"} {
		a, ok := reg.Lookup(taskType)
		require.True(t, ok, taskType)
		assert.NotEmpty(t, a.InputSchema)
	}
	_, ok := reg.Lookup("unknown")
	assert.False(t, ok)
}

func TestActivity_ValidateInput(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	immediate, _ := reg.Lookup("immediate-user-match")

	tests := []struct {
		name    string
		input   interface{}
		wantErr bool
	}{
		{name: "applicant id", input: map[string]interface{}{"applicant_id": "a1"}},
		{
			name: "sns envelope",
			input: map[string]interface{}{
				"Records": []interface{}{
					map[string]interface{}{"Sns": map[string]interface{}{"Message": `{"user_id":"a1"}`}},
				},
			},
		},
		{name: "empty object", input: map[string]interface{}{}, wantErr: true},
		{name: "empty applicant id", input: map[string]interface{}{"applicant_id": ""}, wantErr: true},
		{name: "wrong type", input: map[string]interface{}{"applicant_id": 42}, wantErr: true},
		{name: "empty records", input: map[string]interface{}{"Records": []interface{}{}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := immediate.ValidateInput(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestActivity_ValidateOutput(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	bulk, _ := reg.Lookup("bulk-match")

	assert.NoError(t, bulk.ValidateOutput(map[string]interface{}{"status": "matching_complete", "match_count": 3}))
	assert.Error(t, bulk.ValidateOutput(map[string]interface{}{"status": "no_embedding", "match_count": 0}))
	assert.Error(t, bulk.ValidateOutput(map[string]interface{}{"status": "matching_complete"}))
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"2","activities":[{"id":"x","taskType":"x"}]}`), 0o600))

	reg, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "2", reg.Version)
	a, ok := reg.Lookup("x")
	require.True(t, ok)
	assert.NoError(t, a.ValidateInput(map[string]interface{}{"anything": true}))

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestCheck(t *testing.T) {
	valid := func() *ActivityRegistry {
		return &ActivityRegistry{Activities: []Activity{
			{ID: "bulk-match", TaskType: "bulk-match", Timeout: "5m"},
			{ID: "immediate-user-match", TaskType: "immediate-user-match", Timeout: "60s"},
		}}
	}

	tests := []struct {
		name   string
		mutate func(r *ActivityRegistry)
		errMsg string
	}{
		{name: "valid", mutate: func(r *ActivityRegistry) {}},
		{name: "empty", mutate: func(r *ActivityRegistry) { r.Activities = nil }, errMsg: "no activities"},
		{name: "missing id", mutate: func(r *ActivityRegistry) { r.Activities[0].ID = "" }, errMsg: "field: id"},
		{name: "duplicate id", mutate: func(r *ActivityRegistry) { r.Activities[1].ID = "bulk-match" }, errMsg: "duplicate activity id"},
		{name: "duplicate task type", mutate: func(r *ActivityRegistry) { r.Activities[1].TaskType = "bulk-match" }, errMsg: "duplicate task type"},
		{name: "bad timeout", mutate: func(r *ActivityRegistry) { r.Activities[0].Timeout = "five minutes" }, errMsg: "invalid timeout"},
		{
			name: "schema does not compile",
			mutate: func(r *ActivityRegistry) {
				r.Activities[0].InputSchema = map[string]interface{}{"type": 42}
			},
			errMsg: "inputSchema does not compile",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := valid()
			tt.mutate(reg)
			err := reg.Check()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestDefault_PassesCheck(t *testing.T) {
	reg, err := Default()
	require.NoError(t, err)
	assert.NoError(t, reg.Check())
}
