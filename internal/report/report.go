package report

import (
	"ProctorGolang/pkg/proctor"
	"bufio"
	"errors"
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/parquet-go/parquet-go"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

var ErrUnsupportedFormat = errors.New("unsupported report format, use .parquet or .jsonl")

// Row is one analyzed frame as exported by the offline tools.
type Row struct {
	Source              string   `parquet:"source" json:"source"`
	Frame               int      `parquet:"frame" json:"frame"`
	Skipped             bool     `parquet:"skipped" json:"skipped"`
	FaceDetected        bool     `parquet:"face_detected" json:"face_detected"`
	LookingStraight     bool     `parquet:"looking_straight" json:"looking_straight"`
	HorizontalDeviation *float64 `parquet:"horizontal_deviation,optional" json:"horizontal_deviation,omitempty"`
	FaceSizeRatio       float64  `parquet:"face_size_ratio" json:"face_size_ratio"`
	Violations          []string `parquet:"violations,list" json:"violations"`
	ViolationCount      int      `parquet:"violation_count" json:"violation_count"`
	TotalViolationRate  float64  `parquet:"total_violation_rate" json:"total_violation_rate"`
	SessionDuration     float64  `parquet:"session_duration" json:"session_duration"`
	TotalFrames         int      `parquet:"total_frames" json:"total_frames"`
}

func NewRow(source string, frame int, m proctor.FrameMetrics) Row {
	violations := m.CurrentViolations
	if violations == nil {
		violations = []string{}
	}
	return Row{
		Source:              source,
		Frame:               frame,
		FaceDetected:        m.FaceDetected,
		LookingStraight:     m.LookingStraight,
		HorizontalDeviation: m.HorizontalDeviation,
		FaceSizeRatio:       m.FaceSizeRatio,
		Violations:          violations,
		ViolationCount:      m.ViolationCount,
		TotalViolationRate:  m.TotalViolationRate,
		SessionDuration:     m.SessionDuration,
		TotalFrames:         m.TotalFrames,
	}
}

// SkippedRow records an input that could not be decoded.
func SkippedRow(source string, frame int) Row {
	return Row{Source: source, Frame: frame, Skipped: true, Violations: []string{}}
}

func format(path string) (string, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".parquet", ".jsonl":
		return ext, nil
	default:
		return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}
}

// Write stores rows at path, picking the encoding from the extension.
func Write(path string, rows []Row) error {
	ext, err := format(path)
	if err != nil {
		return err
	}
	if ext == ".parquet" {
		if err := parquet.WriteFile(path, rows); err != nil {
			return fmt.Errorf("write parquet report: %w", err)
		}
		return nil
	}
	return writeJSONL(path, rows)
}

func writeJSONL(path string, rows []Row) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()

	w := bufio.NewWriter(file)
	enc := jsoniter.NewEncoder(w)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("encode row %d: %w", row.Frame, err)
		}
	}
	return w.Flush()
}

// Read loads a report previously produced by Write.
func Read(path string) ([]Row, error) {
	ext, err := format(path)
	if err != nil {
		return nil, err
	}
	if ext == ".parquet" {
		rows, err := parquet.ReadFile[Row](path)
		if err != nil {
			return nil, fmt.Errorf("read parquet report: %w", err)
		}
		return rows, nil
	}
	return readJSONL(path)
}

func readJSONL(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open report: %w", err)
	}
	defer file.Close()

	var rows []Row
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var row Row
		if err := jsoniter.UnmarshalFromString(text, &row); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return rows, nil
}

// Summary tallies violation messages across a report. ViolationRate is a
// percentage of analyzed frames, like a live session's rate.
type Summary struct {
	Frames          int            `json:"frames"`
	Skipped         int            `json:"skipped"`
	TotalViolations int            `json:"total_violations"`
	ViolationRate   float64        `json:"violation_rate"`
	ByMessage       map[string]int `json:"by_message"`
}

func Summarize(rows []Row) Summary {
	s := Summary{ByMessage: map[string]int{}}
	for _, row := range rows {
		if row.Skipped {
			s.Skipped++
			continue
		}
		s.Frames++
		for _, v := range row.Violations {
			s.ByMessage[v]++
		}
		s.TotalViolations += len(row.Violations)
	}
	if s.Frames > 0 {
		s.ViolationRate = float64(s.TotalViolations) / float64(s.Frames) * 100
	}
	return s
}

// Messages returns the summary's violation messages, most frequent first.
func (s Summary) Messages() []string {
	out := make([]string, 0, len(s.ByMessage))
	for msg := range s.ByMessage {
		out = append(out, msg)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.ByMessage[out[i]] != s.ByMessage[out[j]] {
			return s.ByMessage[out[i]] > s.ByMessage[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}
