// internal/storage/matches.go
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/models"
)

// MatchStore persists match records. Records are insert-only; a rerun adds a
// new row under a new match timestamp. Overlapping runs that write the same
// row within one second keep the first copy.
type MatchStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewMatchStore(db *sql.DB, log logger.Logger) *MatchStore {
	return &MatchStore{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"store": "matches"}),
	}
}

func (s *MatchStore) Save(ctx context.Context, rec models.MatchRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO match_results (
			applicant_id, job_id, match_timestamp, similarity_score,
			job_title, location, employment_type, is_remote, posted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (applicant_id, job_id, match_timestamp) DO NOTHING`,
		rec.ApplicantID, rec.JobID, rec.MatchedAt, rec.SimilarityScore,
		rec.Title, rec.Location, rec.EmploymentType, rec.IsRemote, rec.PostedAt)
	if err != nil {
		return fmt.Errorf("insert match %s/%s: %w", rec.ApplicantID, rec.JobID, err)
	}
	return nil
}

// ListByApplicant returns the applicant's matches, newest first.
func (s *MatchStore) ListByApplicant(ctx context.Context, applicantID string, limit int) ([]models.MatchRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT applicant_id, job_id, match_timestamp, similarity_score,
		       job_title, location, employment_type, is_remote, posted_at
		FROM match_results
		WHERE applicant_id = $1
		ORDER BY match_timestamp DESC, similarity_score DESC
		LIMIT $2`, applicantID, limit)
	if err != nil {
		return nil, fmt.Errorf("query matches for %s: %w", applicantID, err)
	}
	defer rows.Close()

	records := []models.MatchRecord{}
	for rows.Next() {
		var (
			rec            models.MatchRecord
			employmentType sql.NullString
		)
		if err := rows.Scan(&rec.ApplicantID, &rec.JobID, &rec.MatchedAt, &rec.SimilarityScore,
			&rec.Title, &rec.Location, &employmentType, &rec.IsRemote, &rec.PostedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		rec.EmploymentType = employmentType.String
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate matches: %w", err)
	}
	return records, nil
}
