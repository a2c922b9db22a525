// Package authapi wires the credential, session, OAuth and CSRF engines
// onto Fiber routes, translating HTTP requests into engine calls and
// engine results into the {status,message,data,errors} envelope.
package authapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/meridianid/authd/pkg/errx"
	"github.com/meridianid/authd/pkg/logx"
)

// envelope is the wire shape every response on this router takes.
type envelope struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Errors  interface{} `json:"errors,omitempty"`
}

func ok(c *fiber.Ctx, status int, data interface{}) error {
	return c.Status(status).JSON(envelope{Status: "success", Data: data})
}

func okMessage(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(envelope{Status: "success", Message: message})
}

// validationError renders a 400 with a per-field error list, matching
// spec's ValidationError contract for malformed bodies.
func validationError(c *fiber.Ctx, fields map[string]string) error {
	return c.Status(fiber.StatusBadRequest).JSON(envelope{
		Status:  "error",
		Message: "request validation failed",
		Errors:  fields,
	})
}

// ErrorHandler is the Fiber error handler for the auth router: it unwraps
// *errx.Error to recover the HTTP status and renders the shared envelope.
// A *fiber.Error keeps its own code and message. Anything else becomes a
// generic 500, never leaking internals.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var e *errx.Error
	if errors.As(err, &e) {
		resp := envelope{Status: "error", Message: e.Message}
		if len(e.Details) > 0 {
			resp.Errors = e.Details
		}
		return c.Status(e.HTTPStatus).JSON(resp)
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(envelope{Status: "error", Message: fe.Message})
	}

	logx.WithError(err).Errorf("authapi: unhandled error on %s %s", c.Method(), c.Path())
	return c.Status(fiber.StatusInternalServerError).JSON(envelope{
		Status:  "error",
		Message: "an unexpected error occurred",
	})
}
