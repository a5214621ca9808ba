package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proctorctl",
		Short: "Offline tools for the proctoring frame analyzer",
		Long: `proctorctl runs the frame violation analyzer outside the API server.

Use it to score recorded frames, replay them against a running stream
endpoint, or summarize an exported report.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(newAnalyzeCmd())
	cmd.AddCommand(newReplayCmd())
	cmd.AddCommand(newReportCmd())

	return cmd
}
