package config

import (
	proctoringHandler "ProctorGolang/internal/api/proctoring/handler"
	proctoringService "ProctorGolang/internal/api/proctoring/service"
	"ProctorGolang/pkg/proctor"
	"bytes"
	"errors"
	"fmt"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

type ProctoringConfig struct {
	CascadeDir     string `validate:"omitempty,dir"`
	Workers        int    `validate:"min=1,max=64"`
	Annotate       bool
	JPEGQuality    int `validate:"min=1,max=100"`
	ThresholdsFile string
	Thresholds     proctor.Thresholds
	Service        proctoringService.Config
	Stream         proctoringHandler.StreamConfig
}

func DefaultProctoringConfig() ProctoringConfig {
	return ProctoringConfig{
		Workers:     min(runtime.NumCPU(), 8),
		Annotate:    true,
		JPEGQuality: 70,
		Thresholds:  proctor.DefaultThresholds(),
		Service:     proctoringService.DefaultConfig(),
		Stream:      proctoringHandler.DefaultStreamConfig(),
	}
}

// LoadProctoringConfig reads PROCTOR_* variables on top of the defaults. A
// thresholds file, when named, replaces only the keys it sets.
func LoadProctoringConfig(validate *validator.Validate) (ProctoringConfig, error) {
	cfg := DefaultProctoringConfig()
	var err error

	cfg.CascadeDir = os.Getenv("PROCTOR_CASCADE_DIR")
	if cfg.Workers, err = envInt("PROCTOR_WORKERS", cfg.Workers); err != nil {
		return cfg, err
	}
	if cfg.Annotate, err = envBool("PROCTOR_ANNOTATE", cfg.Annotate); err != nil {
		return cfg, err
	}
	if cfg.JPEGQuality, err = envInt("PROCTOR_JPEG_QUALITY", cfg.JPEGQuality); err != nil {
		return cfg, err
	}
	if cfg.Service.SnapshotTTL, err = envDuration("PROCTOR_SNAPSHOT_TTL", cfg.Service.SnapshotTTL); err != nil {
		return cfg, err
	}
	if cfg.Service.EvidenceInterval, err = envDuration("PROCTOR_EVIDENCE_INTERVAL", cfg.Service.EvidenceInterval); err != nil {
		return cfg, err
	}
	if cfg.Service.EvidenceWorkers, err = envInt("PROCTOR_EVIDENCE_WORKERS", cfg.Service.EvidenceWorkers); err != nil {
		return cfg, err
	}
	if cfg.Stream.ReadTimeout, err = envDuration("PROCTOR_STREAM_READ_TIMEOUT", cfg.Stream.ReadTimeout); err != nil {
		return cfg, err
	}

	cfg.ThresholdsFile = os.Getenv("PROCTOR_THRESHOLDS_FILE")
	if cfg.ThresholdsFile != "" {
		if cfg.Thresholds, err = LoadThresholds(cfg.ThresholdsFile, validate); err != nil {
			return cfg, err
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid proctoring config: %w", err)
	}

	return cfg, nil
}

// LoadThresholds decodes a YAML thresholds file over the defaults. Unknown
// keys are an error.
func LoadThresholds(path string, validate *validator.Validate) (proctor.Thresholds, error) {
	thresholds := proctor.DefaultThresholds()

	data, err := os.ReadFile(path)
	if err != nil {
		return thresholds, fmt.Errorf("read thresholds file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&thresholds); err != nil && !errors.Is(err, io.EOF) {
		return thresholds, fmt.Errorf("decode thresholds file %s: %w", path, err)
	}

	if err := validate.Struct(thresholds); err != nil {
		return thresholds, fmt.Errorf("invalid thresholds in %s: %w", path, err)
	}

	return thresholds, nil
}

// AnalyzerOptions maps cfg onto analyzer options.
func AnalyzerOptions(cfg ProctoringConfig) []proctor.Option {
	return []proctor.Option{
		proctor.WithThresholds(cfg.Thresholds),
		proctor.WithAnnotation(cfg.Annotate),
		proctor.WithJPEGQuality(cfg.JPEGQuality),
	}
}

func envInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
