// internal/storage/jobs.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"resume-matcher/internal/common/logger"
	"resume-matcher/internal/models"
)

// JobCatalog reads job postings from Postgres.
type JobCatalog struct {
	db     *sql.DB
	logger logger.Logger
}

func NewJobCatalog(db *sql.DB, log logger.Logger) *JobCatalog {
	return &JobCatalog{
		db:     db,
		logger: log.WithFields(map[string]interface{}{"store": "jobs"}),
	}
}

// RecentJobs returns postings with posted_timestamp >= since, newest first.
// Postings without an embedding are returned with a nil Vector.
func (c *JobCatalog) RecentJobs(ctx context.Context, since int64) ([]models.JobPosting, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT job_id, job_title, location, employment_type, is_remote,
		       posted_at, posted_timestamp, embedding
		FROM job_postings
		WHERE posted_timestamp >= $1
		ORDER BY posted_timestamp DESC, job_id`, since)
	if err != nil {
		return nil, fmt.Errorf("query recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.JobPosting
	for rows.Next() {
		var (
			job                                       models.JobPosting
			title, location, employmentType, postedAt sql.NullString
			isRemote                                  sql.NullBool
			vec                                       *pgvector.Vector
		)
		if err := rows.Scan(&job.JobID, &title, &location, &employmentType, &isRemote,
			&postedAt, &job.PostedTimestamp, &vec); err != nil {
			return nil, fmt.Errorf("scan job posting: %w", err)
		}
		job.Title = title.String
		job.Location = location.String
		job.EmploymentType = employmentType.String
		job.IsRemote = isRemote.Bool
		job.PostedAt = postedAt.String
		if vec != nil {
			job.Vector = toFloat64(*vec)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job postings: %w", err)
	}

	c.logger.Debug("fetched recent jobs", map[string]interface{}{
		"since": since,
		"count": len(jobs),
	})
	return jobs, nil
}

// Job returns one posting without its embedding.
func (c *JobCatalog) Job(ctx context.Context, jobID string) (*models.JobPosting, bool, error) {
	var (
		job                                       models.JobPosting
		title, location, employmentType, postedAt sql.NullString
		isRemote                                  sql.NullBool
	)
	err := c.db.QueryRowContext(ctx, `
		SELECT job_id, job_title, location, employment_type, is_remote,
		       posted_at, posted_timestamp
		FROM job_postings WHERE job_id = $1`, jobID).
		Scan(&job.JobID, &title, &location, &employmentType, &isRemote, &postedAt, &job.PostedTimestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query job %s: %w", jobID, err)
	}

	job.Title = title.String
	job.Location = location.String
	job.EmploymentType = employmentType.String
	job.IsRemote = isRemote.Bool
	job.PostedAt = postedAt.String
	return &job, true, nil
}
