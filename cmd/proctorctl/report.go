package main

import (
	"ProctorGolang/internal/report"
	"fmt"

	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "report [file]",
		Short:   "Summarize an exported .parquet or .jsonl report",
		Example: `  proctorctl report session.parquet`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rows, err := report.Read(args[0])
			if err != nil {
				return err
			}

			s := report.Summarize(rows)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Frames:           %d\n", s.Frames)
			fmt.Fprintf(w, "Skipped:          %d\n", s.Skipped)
			fmt.Fprintf(w, "Total violations: %d\n", s.TotalViolations)
			fmt.Fprintf(w, "Violation rate:   %.2f%%\n", s.ViolationRate)
			for _, msg := range s.Messages() {
				fmt.Fprintf(w, "  %-32s %d\n", msg, s.ByMessage[msg])
			}
			return nil
		},
	}
}
