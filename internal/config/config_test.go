package config

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/pkg/proctor"
	"context"
	"errors"
	"image"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

func TestMain(m *testing.M) {
	os.Setenv("APP_ENV", "test")
	os.Exit(m.Run())
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadThresholds(t *testing.T) {
	validate := NewValidator()
	defaults := proctor.DefaultThresholds()

	tests := []struct {
		name    string
		content string
		want    func(proctor.Thresholds) bool
		wantErr bool
	}{
		{
			name:    "partial override",
			content: "max_horizontal_deviation: 0.3\nmovement_threshold: 80\n",
			want: func(got proctor.Thresholds) bool {
				return got.MaxHorizontalDeviation == 0.3 && got.MovementThreshold == 80 && got.MaxFaceRatio == defaults.MaxFaceRatio
			},
		},
		{
			name:    "empty file keeps defaults",
			content: "",
			want:    func(got proctor.Thresholds) bool { return got == defaults },
		},
		{name: "unknown key", content: "max_horizontal_deviaton: 0.3\n", wantErr: true},
		{name: "out of range", content: "max_vertical_deviation: 2\n", wantErr: true},
		{name: "min above max", content: "min_face_ratio: 0.5\nmax_face_ratio: 0.4\n", wantErr: true},
		{name: "not yaml", content: "::::", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := LoadThresholds(writeFile(t, "thresholds.yaml", tt.content), validate)
			if tt.wantErr {
				if err == nil {
					t.Errorf("Expected an error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadThresholds() error = %v", err)
			}
			if !tt.want(got) {
				t.Errorf("Unexpected thresholds %+v", got)
			}
		})
	}

	if _, err := LoadThresholds(filepath.Join(t.TempDir(), "missing.yaml"), validate); err == nil {
		t.Errorf("Expected an error for a missing file")
	}
}

func TestLoadProctoringConfig(t *testing.T) {
	t.Setenv("PROCTOR_CASCADE_DIR", t.TempDir())
	t.Setenv("PROCTOR_WORKERS", "3")
	t.Setenv("PROCTOR_ANNOTATE", "false")
	t.Setenv("PROCTOR_JPEG_QUALITY", "85")
	t.Setenv("PROCTOR_SNAPSHOT_TTL", "45s")
	t.Setenv("PROCTOR_EVIDENCE_INTERVAL", "0s")
	t.Setenv("PROCTOR_THRESHOLDS_FILE", writeFile(t, "t.yaml", "max_face_ratio: 0.5\n"))

	cfg, err := LoadProctoringConfig(NewValidator())
	if err != nil {
		t.Fatalf("LoadProctoringConfig() error = %v", err)
	}
	if cfg.Workers != 3 {
		t.Errorf("Expected workers=3, got %d", cfg.Workers)
	}
	if cfg.Annotate {
		t.Errorf("Expected annotation disabled")
	}
	if cfg.JPEGQuality != 85 {
		t.Errorf("Expected jpeg quality 85, got %d", cfg.JPEGQuality)
	}
	if cfg.Service.SnapshotTTL != 45*time.Second {
		t.Errorf("Expected snapshot ttl 45s, got %s", cfg.Service.SnapshotTTL)
	}
	if cfg.Service.EvidenceInterval != 0 {
		t.Errorf("Expected evidence disabled, got %s", cfg.Service.EvidenceInterval)
	}
	if cfg.Thresholds.MaxFaceRatio != 0.5 {
		t.Errorf("Expected max_face_ratio 0.5, got %v", cfg.Thresholds.MaxFaceRatio)
	}
}

func TestLoadProctoringConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non numeric workers", "PROCTOR_WORKERS", "many"},
		{"zero workers", "PROCTOR_WORKERS", "0"},
		{"quality out of range", "PROCTOR_JPEG_QUALITY", "101"},
		{"bad bool", "PROCTOR_ANNOTATE", "sometimes"},
		{"bad duration", "PROCTOR_SNAPSHOT_TTL", "soon"},
		{"missing cascade dir", "PROCTOR_CASCADE_DIR", "/does/not/exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := LoadProctoringConfig(NewValidator()); err == nil {
				t.Errorf("Expected an error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestNewValidatorUsesTagNames(t *testing.T) {
	err := NewValidator().Struct(proctoring.StartSessionRequest{})

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		t.Fatalf("Expected validation errors, got %v", err)
	}
	var fields []string
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	if got := strings.Join(fields, ","); got != "interview_id,candidate_id" {
		t.Errorf("Expected interview_id,candidate_id, got %s", got)
	}
}

func TestHealthCheck(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	noFaces := proctor.ClassifierFunc(func(context.Context, *image.Gray) ([]image.Rectangle, error) {
		return nil, nil
	})
	analyzer, err := proctor.New(noFaces, noFaces)
	if err != nil {
		t.Fatalf("proctor.New() error = %v", err)
	}

	server, err := NewServer(
		WithFiber(NewFiber(logger)),
		WithLogger(logger),
		WithProctoring(analyzer, DefaultProctoringConfig()),
	)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	server.setupHealthCheck()

	resp, err := server.engine.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", resp.StatusCode)
	}

	var body proctoring.HealthResponse
	if err := jsoniter.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.DetectionMethods) != len(proctoring.DetectionMethods) {
		t.Errorf("Expected %d detection methods, got %d", len(proctoring.DetectionMethods), len(body.DetectionMethods))
	}
}

func TestNewServerRequiresAnalyzer(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	if _, err := NewServer(WithFiber(NewFiber(logger)), WithLogger(logger)); err == nil {
		t.Errorf("Expected an error without an analyzer")
	}
}
