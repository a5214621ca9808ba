package proctoringRepository

import (
	"ProctorGolang/internal/api/proctoring"
	"ProctorGolang/internal/entity"
	contextPkg "ProctorGolang/pkg/context"
	"ProctorGolang/pkg/proctor"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"time"
)

type SummaryDB struct {
	ID              sql.NullString  `db:"id"`
	InterviewID     sql.NullString  `db:"interview_id"`
	CandidateID     sql.NullString  `db:"candidate_id"`
	StartedAt       time.Time       `db:"started_at"`
	EndedAt         time.Time       `db:"ended_at"`
	TotalFrames     sql.NullInt64   `db:"total_frames"`
	SkippedFrames   sql.NullInt64   `db:"skipped_frames"`
	ViolationCounts types.JSONText  `db:"violation_counts"`
	TotalViolations sql.NullInt64   `db:"total_violations"`
	ViolationRate   sql.NullFloat64 `db:"violation_rate"`
	DurationSeconds sql.NullFloat64 `db:"duration_seconds"`
	EvidenceKeys    types.JSONText  `db:"evidence_keys"`
}

func (r *summariesRepository) CreateSummary(ctx context.Context, summary entity.ProctoringSummary) error {
	requestID := contextPkg.GetRequestID(ctx)

	argsKV, err := summaryArgs(summary)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"session_id": summary.ID,
			"error":      err.Error(),
		}).Error("Failed to encode summary columns for CreateSummary")
		return err
	}

	query, args, err := sqlx.Named(queryCreateSummary, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("Failed to build SQL query for CreateSummary")
		return err
	}
	query = r.q.Rebind(query)

	if _, err := r.q.ExecContext(ctx, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"session_id": summary.ID,
			"error":      err.Error(),
		}).Error("Database error when creating proctoring summary")
		return err
	}

	return nil
}

func (r *summariesRepository) GetSummaryByID(ctx context.Context, id string) (entity.ProctoringSummary, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var summary SummaryDB

	query, args, err := sqlx.Named(queryGetSummaryByID, map[string]interface{}{"id": id})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetSummaryByID named query preparation err")
		return entity.ProctoringSummary{}, err
	}

	query = r.q.Rebind(query)

	if err := r.q.QueryRowxContext(ctx, query, args...).StructScan(&summary); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"session_id": id,
			}).Warn("GetSummaryByID no rows found")
			return entity.ProctoringSummary{}, proctoring.ErrSummaryNotFound
		}
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetSummaryByID execution err")
		return entity.ProctoringSummary{}, err
	}

	return makeSummary(summary)
}

func (r *summariesRepository) GetSummariesByInterviewID(ctx context.Context, interviewID string, limit, offset int) ([]entity.ProctoringSummary, int, error) {
	requestID := contextPkg.GetRequestID(ctx)
	var rows []SummaryDB
	var total int

	countQuery, countArgs, err := sqlx.Named(queryCountSummariesByInterviewID, map[string]interface{}{
		"interview_id": interviewID,
	})
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountSummariesByInterviewID named query preparation err")
		return nil, 0, err
	}

	countQuery = r.q.Rebind(countQuery)

	if err := r.q.QueryRowxContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("CountSummariesByInterviewID execution err")
		return nil, 0, err
	}

	argsKV := map[string]interface{}{
		"interview_id": interviewID,
		"limit":        limit,
		"offset":       offset,
	}

	query, args, err := sqlx.Named(queryGetSummariesByInterviewID, argsKV)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetSummariesByInterviewID named query preparation err")
		return nil, 0, err
	}

	query = r.q.Rebind(query)

	if err := r.q.SelectContext(ctx, &rows, query, args...); err != nil {
		r.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"error":      err.Error(),
		}).Error("GetSummariesByInterviewID execution err")
		return nil, 0, err
	}

	summaries := make([]entity.ProctoringSummary, 0, len(rows))
	for _, row := range rows {
		summary, err := makeSummary(row)
		if err != nil {
			r.log.WithFields(logrus.Fields{
				"request_id": requestID,
				"session_id": row.ID.String,
				"error":      err.Error(),
			}).Error("GetSummariesByInterviewID decode err")
			return nil, 0, err
		}
		summaries = append(summaries, summary)
	}

	return summaries, total, nil
}

func summaryArgs(summary entity.ProctoringSummary) (map[string]interface{}, error) {
	counts := summary.ViolationCounts
	if counts == nil {
		counts = proctor.ViolationCounts{}
	}
	countsJSON, err := jsoniter.Marshal(counts)
	if err != nil {
		return nil, fmt.Errorf("encode violation_counts: %w", err)
	}

	keys := summary.EvidenceKeys
	if keys == nil {
		keys = []string{}
	}
	keysJSON, err := jsoniter.Marshal(keys)
	if err != nil {
		return nil, fmt.Errorf("encode evidence_keys: %w", err)
	}

	return map[string]interface{}{
		"id":               summary.ID,
		"interview_id":     summary.InterviewID,
		"candidate_id":     summary.CandidateID,
		"started_at":       summary.StartedAt,
		"ended_at":         summary.EndedAt,
		"total_frames":     summary.TotalFrames,
		"skipped_frames":   summary.SkippedFrames,
		"violation_counts": types.JSONText(countsJSON),
		"total_violations": summary.TotalViolations,
		"violation_rate":   summary.ViolationRate,
		"duration_seconds": summary.DurationSeconds,
		"evidence_keys":    types.JSONText(keysJSON),
	}, nil
}

func makeSummary(row SummaryDB) (entity.ProctoringSummary, error) {
	counts := proctor.ViolationCounts{}
	if len(row.ViolationCounts) > 0 {
		if err := row.ViolationCounts.Unmarshal(&counts); err != nil {
			return entity.ProctoringSummary{}, fmt.Errorf("decode violation_counts: %w", err)
		}
	}

	keys := []string{}
	if len(row.EvidenceKeys) > 0 {
		if err := row.EvidenceKeys.Unmarshal(&keys); err != nil {
			return entity.ProctoringSummary{}, fmt.Errorf("decode evidence_keys: %w", err)
		}
	}

	return entity.ProctoringSummary{
		ID:              row.ID.String,
		InterviewID:     row.InterviewID.String,
		CandidateID:     row.CandidateID.String,
		StartedAt:       row.StartedAt,
		EndedAt:         row.EndedAt,
		TotalFrames:     int(row.TotalFrames.Int64),
		SkippedFrames:   int(row.SkippedFrames.Int64),
		ViolationCounts: counts,
		TotalViolations: int(row.TotalViolations.Int64),
		ViolationRate:   row.ViolationRate.Float64,
		DurationSeconds: row.DurationSeconds.Float64,
		EvidenceKeys:    keys,
	}, nil
}
