package main

import (
	"ProctorGolang/internal/report"
	"ProctorGolang/pkg/log"
	websocketPkg "ProctorGolang/pkg/websocket"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newReplayCmd() *cobra.Command {
	var (
		endpoint    string
		interviewID string
		candidateID string
		token       string
		out         string
		fps         float64
	)

	cmd := &cobra.Command{
		Use:   "replay [frames or directories...]",
		Short: "Stream recorded frames to a running proctoring endpoint",
		Long: `Opens a proctoring stream and sends each frame at the given rate, waiting
for the server's reply before moving on. Replies are printed as they arrive
and can be exported with --out.`,
		Example: `  # Replay at 10 frames per second against a local server
  proctorctl replay ./frames --interview int-42 --candidate cand-7

  # Replay slowly against another host and keep the replies
  proctorctl replay ./frames --url ws://proctor.internal:3000/api/v1/proctoring/ws \
    --interview int-42 --candidate cand-7 --fps 2 --out replies.jsonl`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if fps <= 0 {
				return fmt.Errorf("--fps must be positive, got %v", fps)
			}
			if interviewID == "" || candidateID == "" {
				return fmt.Errorf("--interview and --candidate are required")
			}

			files, err := collectFrames(args)
			if err != nil {
				return err
			}

			target, err := url.Parse(endpoint)
			if err != nil {
				return fmt.Errorf("invalid --url: %w", err)
			}
			q := target.Query()
			q.Set("interview_id", interviewID)
			q.Set("candidate_id", candidateID)
			target.RawQuery = q.Encode()

			opts := websocketPkg.DefaultOptions()
			if token != "" {
				opts.Header = http.Header{"Authorization": []string{"Bearer " + token}}
			}

			logger := log.NewLogger()
			client, err := websocketPkg.Dial(cmd.Context(), target.String(), logger, opts)
			if err != nil {
				return err
			}
			defer client.Close()

			ticker := time.NewTicker(time.Duration(float64(time.Second) / fps))
			defer ticker.Stop()

			w := cmd.OutOrStdout()
			rows := make([]report.Row, 0, len(files))
			sessionID := ""

			for i, file := range files {
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-ticker.C:
				}

				raw, err := os.ReadFile(file)
				if err != nil {
					return err
				}

				reply, err := client.SendFrame(cmd.Context(), raw)
				if err != nil {
					return fmt.Errorf("%s: %w", file, err)
				}
				if reply.SessionID != "" {
					sessionID = reply.SessionID
				}

				if reply.Error != "" {
					fmt.Fprintf(w, "%-32s skipped: %s\n", filepath.Base(file), reply.Error)
					rows = append(rows, report.SkippedRow(file, i+1))
					continue
				}

				status := "ok"
				if len(reply.Metrics.CurrentViolations) > 0 {
					status = strings.Join(reply.Metrics.CurrentViolations, "; ")
				}
				fmt.Fprintf(w, "%-32s total=%-4d rate=%.2f%%  %s\n", filepath.Base(file), reply.Metrics.TotalFrames, reply.Metrics.TotalViolationRate, status)
				rows = append(rows, report.NewRow(file, i+1, reply.Metrics))
			}

			if sessionID != "" {
				fmt.Fprintf(w, "\nSession %s: sent %d frames\n", sessionID, len(files))
			}
			if out != "" {
				if err := report.Write(out, rows); err != nil {
					return err
				}
				fmt.Fprintf(w, "Wrote %d rows to %s\n", len(rows), out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "url", "ws://localhost:3000/api/v1/proctoring/ws", "Proctoring stream endpoint")
	cmd.Flags().StringVar(&interviewID, "interview", "", "Interview id for the session")
	cmd.Flags().StringVar(&candidateID, "candidate", "", "Candidate id for the session")
	cmd.Flags().StringVar(&token, "token", os.Getenv("PROCTOR_TOKEN"), "Bearer token sent on the handshake")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write replies to a .parquet or .jsonl file")
	cmd.Flags().Float64Var(&fps, "fps", 10, "Frames sent per second")

	return cmd
}
