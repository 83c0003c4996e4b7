// internal/api/response.go
package api

import (
	"github.com/gofiber/fiber/v2"
)

type successBody struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Meta    interface{} `json:"meta,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

type errorBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	Details   string `json:"details,omitempty"`
}

func respondOK(c *fiber.Ctx, message string, data, meta interface{}) error {
	return c.Status(fiber.StatusOK).JSON(successBody{
		Success: true,
		Message: message,
		Meta:    meta,
		Data:    data,
	})
}

func respondError(c *fiber.Ctx, status int, message, code, details string) error {
	if status == 0 {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(errorBody{
		Success:   false,
		Message:   message,
		ErrorCode: code,
		Details:   details,
	})
}
