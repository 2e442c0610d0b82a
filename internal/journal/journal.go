// Package journal records extraction job history in Postgres. The journal is
// optional operational telemetry; the pipeline runs fine without it.
package journal

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rfmoraes/clinic-exams/constants"
)

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// Open creates the pgx pool backing the journal.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	logger.Info("connecting to journal database")
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse journal DSN", "error", err)
		return nil, err
	}

	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "clinic-exams"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to journal database", "error", err)
		return nil, err
	}

	logger.Info("journal database connected")
	return pool, nil
}

// HealthCheck pings the pool, bounded by timeout.
func HealthCheck(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return pool.Ping(ctx)
}

// Job is one extraction attempt as recorded in the journal.
type Job struct {
	ID           uuid.UUID
	PatientID    string
	ExamID       string
	FileName     string
	Format       string
	Status       constants.JobStatus
	ResultCount  int
	ErrorMessage string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// Recorder is the seam the pipeline writes through. Nop satisfies it when no
// journal database is configured.
type Recorder interface {
	Start(ctx context.Context, patientID, examID, fileName, format string) (uuid.UUID, error)
	FinishOCR(ctx context.Context, jobID uuid.UUID, textLen int) error
	FinishAnalyzed(ctx context.Context, jobID uuid.UUID, resultCount int) error
	FinishWarned(ctx context.Context, jobID uuid.UUID, warning string) error
	FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error
}

// Nop is the journal used when DB_URL is unset.
type Nop struct{}

func (Nop) Start(context.Context, string, string, string, string) (uuid.UUID, error) {
	return uuid.Nil, nil
}
func (Nop) FinishOCR(context.Context, uuid.UUID, int) error        { return nil }
func (Nop) FinishAnalyzed(context.Context, uuid.UUID, int) error   { return nil }
func (Nop) FinishWarned(context.Context, uuid.UUID, string) error  { return nil }
func (Nop) FinishFailure(context.Context, uuid.UUID, string) error { return nil }

type Journal struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

func New(pool *pgxpool.Pool, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{pool: pool, log: logger}
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS extraction_jobs (
    id            UUID PRIMARY KEY,
    patient_id    TEXT NOT NULL,
    exam_id       TEXT NOT NULL DEFAULT '',
    file_name     TEXT NOT NULL,
    format        TEXT NOT NULL,
    status        TEXT NOT NULL,
    result_count  INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    started_at    TIMESTAMPTZ NOT NULL,
    finished_at   TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS extraction_jobs_exam_idx ON extraction_jobs (exam_id);
`

// EnsureSchema creates the journal table when it does not exist yet.
func (j *Journal) EnsureSchema(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, schemaDDL)
	return err
}

func (j *Journal) Start(ctx context.Context, patientID, examID, fileName, format string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := j.pool.Exec(ctx,
		`INSERT INTO extraction_jobs (id, patient_id, exam_id, file_name, format, status, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, patientID, examID, fileName, format, constants.JobStatusRunning, time.Now().UTC())
	if err != nil {
		j.log.Error("extraction_job start failed", "file", fileName, "error", err)
		return uuid.Nil, err
	}
	j.log.Info("extraction_job started", "job_id", id, "file", fileName, "format", format)
	return id, nil
}

func (j *Journal) FinishOCR(ctx context.Context, jobID uuid.UUID, textLen int) error {
	_, err := j.pool.Exec(ctx,
		`UPDATE extraction_jobs SET status = $2, result_count = $3 WHERE id = $1`,
		jobID, constants.JobStatusOCROK, textLen)
	if err != nil {
		j.log.Error("extraction_job ocr update failed", "job_id", jobID, "error", err)
	}
	return err
}

func (j *Journal) FinishAnalyzed(ctx context.Context, jobID uuid.UUID, resultCount int) error {
	return j.finish(ctx, jobID, constants.JobStatusAnalyzed, resultCount, "")
}

func (j *Journal) FinishWarned(ctx context.Context, jobID uuid.UUID, warning string) error {
	return j.finish(ctx, jobID, constants.JobStatusWarned, 0, warning)
}

func (j *Journal) FinishFailure(ctx context.Context, jobID uuid.UUID, message string) error {
	return j.finish(ctx, jobID, constants.JobStatusFailed, 0, message)
}

func (j *Journal) finish(ctx context.Context, jobID uuid.UUID, status constants.JobStatus, count int, message string) error {
	_, err := j.pool.Exec(ctx,
		`UPDATE extraction_jobs
		 SET status = $2, result_count = $3, error_message = $4, finished_at = $5
		 WHERE id = $1`,
		jobID, status, count, message, time.Now().UTC())
	if err != nil {
		j.log.Error("extraction_job finish failed", "job_id", jobID, "status", status, "error", err)
		return err
	}
	if status == constants.JobStatusFailed {
		j.log.Warn("extraction_job finished", "job_id", jobID, "status", status, "error", message)
	} else {
		j.log.Info("extraction_job finished", "job_id", jobID, "status", status, "results", count)
	}
	return err
}

// RecentJobs lists the latest jobs for one exam, newest first.
func (j *Journal) RecentJobs(ctx context.Context, examID string, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.pool.Query(ctx,
		`SELECT id, patient_id, exam_id, file_name, format, status, result_count, error_message, started_at, finished_at
		 FROM extraction_jobs WHERE exam_id = $1 ORDER BY started_at DESC LIMIT $2`,
		examID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		var job Job
		if err := rows.Scan(&job.ID, &job.PatientID, &job.ExamID, &job.FileName, &job.Format,
			&job.Status, &job.ResultCount, &job.ErrorMessage, &job.StartedAt, &job.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}
