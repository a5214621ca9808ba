package main

import (
	"ProctorGolang/internal/config"
	"ProctorGolang/internal/report"
	"ProctorGolang/pkg/cascade"
	"ProctorGolang/pkg/proctor"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		out          string
		annotatedDir string
		cascadeDir   string
		thresholds   string
		fps          float64
	)

	cmd := &cobra.Command{
		Use:   "analyze [frames or directories...]",
		Short: "Score recorded frames as one proctoring session",
		Long: `Runs every frame through the violation analyzer in order, as if they
had arrived on a single stream, and prints the per-frame metrics followed by
the session totals.

Frames that cannot be decoded are reported and skipped without touching the
session counters.`,
		Example: `  # Score a directory of captured frames
  proctorctl analyze ./frames

  # Export metrics for later analysis
  proctorctl analyze ./frames --out session.parquet

  # Keep annotated copies and use custom thresholds
  proctorctl analyze ./frames --annotated ./annotated --thresholds thresholds.yaml`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fps <= 0 {
				return fmt.Errorf("--fps must be positive, got %v", fps)
			}

			files, err := collectFrames(args)
			if err != nil {
				return err
			}

			cfg, err := config.LoadProctoringConfig(config.NewValidator())
			if err != nil {
				return err
			}
			if cascadeDir != "" {
				cfg.CascadeDir = cascadeDir
			}
			if thresholds != "" {
				if cfg.Thresholds, err = config.LoadThresholds(thresholds, config.NewValidator()); err != nil {
					return err
				}
			}
			cfg.Annotate = annotatedDir != ""

			pools, err := cascade.LoadFacePools(cfg.CascadeDir, 1, cascade.DefaultParams())
			if err != nil {
				return err
			}
			defer pools.Close()

			// Session time follows the frame rate rather than the wall clock.
			start := time.Now()
			clock := start
			opts := append(config.AnalyzerOptions(cfg), proctor.WithClock(func() time.Time { return clock }))
			analyzer, err := proctor.New(pools.Frontal, pools.Profile, opts...)
			if err != nil {
				return err
			}

			if annotatedDir != "" {
				if err := os.MkdirAll(annotatedDir, 0o755); err != nil {
					return err
				}
			}

			w := cmd.OutOrStdout()
			session := analyzer.CreateSession()
			rows := make([]report.Row, 0, len(files))
			step := time.Duration(float64(time.Second) / fps)

			for i, file := range files {
				if err := cmd.Context().Err(); err != nil {
					return err
				}
				clock = start.Add(time.Duration(i) * step)

				raw, err := os.ReadFile(file)
				if err != nil {
					return err
				}

				result, err := analyzer.ProcessFrame(cmd.Context(), session, raw)
				var decodeErr *proctor.DecodeError
				if errors.As(err, &decodeErr) {
					fmt.Fprintf(w, "%-32s skipped: %v\n", filepath.Base(file), decodeErr)
					rows = append(rows, report.SkippedRow(file, i+1))
					continue
				}
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}

				m := result.Metrics
				status := "ok"
				if len(m.CurrentViolations) > 0 {
					status = strings.Join(m.CurrentViolations, "; ")
				}
				fmt.Fprintf(w, "%-32s face=%-5t ratio=%.3f  %s\n", filepath.Base(file), m.FaceDetected, m.FaceSizeRatio, status)
				rows = append(rows, report.NewRow(file, i+1, m))

				if annotatedDir != "" && len(result.Image) > 0 {
					name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file)) + proctor.Extension(result.Format)
					if err := os.WriteFile(filepath.Join(annotatedDir, name), result.Image, 0o644); err != nil {
						return err
					}
				}
			}

			printSnapshot(cmd, session.Snapshot())

			if out != "" {
				if err := report.Write(out, rows); err != nil {
					return err
				}
				fmt.Fprintf(w, "\nWrote %d rows to %s\n", len(rows), out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "Write per-frame metrics to a .parquet or .jsonl file")
	cmd.Flags().StringVar(&annotatedDir, "annotated", "", "Directory for annotated JPEG copies of each frame")
	cmd.Flags().StringVar(&cascadeDir, "cascade-dir", "", "Directory holding the Haar cascade models (default $PROCTOR_CASCADE_DIR)")
	cmd.Flags().StringVar(&thresholds, "thresholds", "", "YAML thresholds file (default $PROCTOR_THRESHOLDS_FILE)")
	cmd.Flags().Float64Var(&fps, "fps", 10, "Frame rate used to compute session duration")

	return cmd
}

func printSnapshot(cmd *cobra.Command, snap proctor.SessionSnapshot) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "\nFrames analyzed:  %d\n", snap.TotalFrames)
	fmt.Fprintf(w, "Total violations: %d\n", snap.TotalViolations)
	fmt.Fprintf(w, "Violation rate:   %.2f%%\n", snap.ViolationRate)
	for _, kind := range proctor.ViolationKinds {
		fmt.Fprintf(w, "  %-16s %d\n", kind, snap.ViolationCounts[kind])
	}
}
