package handlerUtil

import (
	"ProctorGolang/pkg/response"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHandle(t *testing.T) {
	errNotFound := response.NewError(http.StatusNotFound, "proctoring session not found")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"domain error", errNotFound, http.StatusNotFound, "proctoring session not found"},
		{"wrapped domain error", fmt.Errorf("lookup: %w", errNotFound), http.StatusNotFound, "proctoring session not found"},
		{"joined domain error", errors.Join(response.NewError(http.StatusInternalServerError, "failed to save"), errors.New("pq: connection refused")), http.StatusInternalServerError, "failed to save"},
		{"deadline", context.DeadlineExceeded, http.StatusRequestTimeout, "Request Timeout"},
		{"fiber error", fiber.ErrUpgradeRequired, http.StatusUpgradeRequired, "Upgrade Required"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/", func(c *fiber.Ctx) error {
				return New(quietLogger()).Handle(c, "req-1", tt.err, c.Path(), "test")
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("Expected status %d, got %d", tt.wantStatus, resp.StatusCode)
			}

			var body ErrorResponse
			if err := jsoniter.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestValidationDetails(t *testing.T) {
	type query struct {
		Limit       int    `validate:"min=1"`
		InterviewID string `validate:"required"`
	}

	err := validator.New().Struct(query{})
	got := ValidationDetails(err)
	if !strings.Contains(got, "Limit: min=1") || !strings.Contains(got, "InterviewID: required") {
		t.Errorf("Unexpected validation details %q", got)
	}

	if got := ValidationDetails(errors.New("plain")); got != "plain" {
		t.Errorf("Expected plain error text, got %q", got)
	}
}
