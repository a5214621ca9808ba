package proctoringRepository

const (
	queryCreateSummary = `
		INSERT INTO proctoring_summaries (
			id,
			interview_id,
			candidate_id,
			started_at,
			ended_at,
			total_frames,
			skipped_frames,
			violation_counts,
			total_violations,
			violation_rate,
			duration_seconds,
			evidence_keys
		) VALUES (
			:id,
			:interview_id,
			:candidate_id,
			:started_at,
			:ended_at,
			:total_frames,
			:skipped_frames,
			:violation_counts,
			:total_violations,
			:violation_rate,
			:duration_seconds,
			:evidence_keys
		)
	`

	queryGetSummaryByID = `
		SELECT
			id,
			interview_id,
			candidate_id,
			started_at,
			ended_at,
			total_frames,
			skipped_frames,
			violation_counts,
			total_violations,
			violation_rate,
			duration_seconds,
			evidence_keys
		FROM proctoring_summaries
		WHERE id = :id
	`

	queryGetSummariesByInterviewID = `
		SELECT
			id,
			interview_id,
			candidate_id,
			started_at,
			ended_at,
			total_frames,
			skipped_frames,
			violation_counts,
			total_violations,
			violation_rate,
			duration_seconds,
			evidence_keys
		FROM proctoring_summaries
		WHERE interview_id = :interview_id
		ORDER BY started_at DESC
		LIMIT :limit OFFSET :offset
	`

	queryCountSummariesByInterviewID = `
		SELECT COUNT(*)
		FROM proctoring_summaries
		WHERE interview_id = :interview_id
	`
)
