package log

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"

	contextPkg "ProctorGolang/pkg/context"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

func TestErrorWithTraceIDUsesRequestID(t *testing.T) {
	got := ErrorWithTraceID(Fields{RequestIDKey: "01HZX"}, "boom")
	if got != "01HZX" {
		t.Errorf("Expected trace id 01HZX, got %s", got)
	}
}

func TestErrorWithTraceIDGeneratesUUID(t *testing.T) {
	for _, fields := range []Fields{nil, {RequestIDKey: "unknown"}, {"other": 1}} {
		got := ErrorWithTraceID(fields, "boom")
		if _, err := uuid.Parse(got); err != nil {
			t.Errorf("Expected a uuid trace id for %v, got %q", fields, got)
		}
	}
}

func TestWithRequestID(t *testing.T) {
	ctx := contextPkg.WithRequestID(context.Background(), "req-1")
	if got := WithRequestID(ctx).Data[RequestIDKey]; got != "req-1" {
		t.Errorf("Expected request_id req-1, got %v", got)
	}
	if got := WithRequestID(context.Background()).Data[RequestIDKey]; got != "unknown" {
		t.Errorf("Expected request_id unknown, got %v", got)
	}
}
