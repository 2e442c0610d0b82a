// Package persist coordinates saving an exam: its record, its blob
// attachments, and the derived timeline note that mirrors it.
package persist

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/exam"
)

// ExamRecords is the record side of the document store.
type ExamRecords interface {
	CreateExam(ctx context.Context, e *exam.Exam) (string, error)
	UpdateExam(ctx context.Context, e *exam.Exam) error
	DeleteExam(ctx context.Context, id string) error
}

// NoteRecords is the timeline-note side of the document store. There is no
// index on exam references; upserts scan the patient's notes.
type NoteRecords interface {
	ListNotes(ctx context.Context, patientID string) ([]*exam.DerivedNote, error)
	CreateNote(ctx context.Context, n *exam.DerivedNote) (string, error)
	UpdateNote(ctx context.Context, n *exam.DerivedNote) error
	DeleteNote(ctx context.Context, id string) error
}

// AttachmentBlobs is the blob side of the store.
type AttachmentBlobs interface {
	Upload(ctx context.Context, patientID, examID string, att *exam.Attachment) (string, error)
	Remove(ctx context.Context, patientID, examID, fileName string) error
}

// Status is the terminal outcome of one save call.
type Status string

const (
	StatusSuccess       Status = "success"
	StatusPartialUpload Status = "partial_upload_failure"
)

// UploadFailure names one attachment that could not be uploaded.
type UploadFailure struct {
	FileName string
	Err      error
}

// Outcome reports a completed save. The exam record is durable whenever an
// Outcome (rather than an error) comes back.
type Outcome struct {
	ID      string
	Applied []string // file names uploaded during this save
	Fails   []UploadFailure
	Status  Status
}

type Coordinator struct {
	records ExamRecords
	notes   NoteRecords
	blobs   AttachmentBlobs
	policy  common.RetryPolicy
	logger  *slog.Logger
	now     func() time.Time
}

func NewCoordinator(records ExamRecords, notes NoteRecords, blobs AttachmentBlobs, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		records: records,
		notes:   notes,
		blobs:   blobs,
		policy:  common.DefaultRecordWritePolicy,
		logger:  logger,
		now:     time.Now,
	}
}

// Save writes the exam record, uploads pending attachments, and upserts the
// derived note, in that order. The record write is the only retried step; a
// failed upload is surfaced and retried by the user saving again, which is
// idempotent because uploaded attachments are skipped.
func (c *Coordinator) Save(ctx context.Context, e *exam.Exam) (Outcome, error) {
	if strings.TrimSpace(e.Title) == "" {
		return Outcome{}, common.Failuref(common.KindValidationFailed, "exam title must not be empty")
	}

	now := c.now().UTC()
	e.UpdatedAt = now
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}

	// Step 1: the record itself, retried with fixed backoff.
	err := common.Retry(ctx, c.policy, c.logger, "exam record write", func(ctx context.Context) error {
		if e.Persisted() {
			return c.records.UpdateExam(ctx, e)
		}
		id, err := c.records.CreateExam(ctx, e)
		if err != nil {
			return err
		}
		e.ID = id
		return nil
	})
	if err != nil {
		return Outcome{}, common.NewFailure(common.KindRecordWriteFailed, "exam record write failed", err)
	}

	// Step 2: pending uploads, concurrently, joined on all outcomes so one
	// slow or failed upload cannot drop the others' results.
	pending := e.PendingAttachments()
	applied := make([]string, 0, len(pending))
	var fails []UploadFailure
	if len(pending) > 0 {
		type result struct {
			att *exam.Attachment
			url string
			err error
		}
		results := make([]result, len(pending))
		var wg sync.WaitGroup
		for i, att := range pending {
			wg.Add(1)
			go func(i int, att *exam.Attachment) {
				defer wg.Done()
				url, err := c.blobs.Upload(ctx, e.PatientID, e.ID, att)
				results[i] = result{att: att, url: url, err: err}
			}(i, att)
		}
		wg.Wait()

		for _, r := range results {
			if r.err != nil {
				fails = append(fails, UploadFailure{FileName: r.att.FileName, Err: r.err})
				continue
			}
			r.att.MarkUploaded(r.url, c.now().UTC())
			applied = append(applied, r.att.FileName)
		}

		// Persist the updated attachment manifest. Best effort: the
		// in-memory URLs survive and the next save writes them.
		if len(applied) > 0 {
			if err := c.records.UpdateExam(ctx, e); err != nil {
				c.logger.Warn("attachment manifest update failed; next save will repair it",
					"exam_id", e.ID, "error", err)
			}
		}
	}

	// Step 3: derived note, best effort. The exam is the source of truth and
	// the note is a mirror, so failures are logged and swallowed.
	if err := c.upsertNote(ctx, e); err != nil {
		c.logger.Warn("derived note upsert failed", "exam_id", e.ID, "error", err)
	}

	out := Outcome{ID: e.ID, Applied: applied, Fails: fails, Status: StatusSuccess}
	if len(fails) > 0 {
		out.Status = StatusPartialUpload
		c.logger.Warn("save finished with failed uploads",
			"exam_id", e.ID, "uploaded", len(applied), "failed", len(fails))
	}
	return out, nil
}

// Delete removes the exam record, its remote blobs, and its derived note.
func (c *Coordinator) Delete(ctx context.Context, e *exam.Exam) error {
	if !e.Persisted() {
		return nil
	}

	for _, att := range e.Attachments {
		if !att.Uploaded() {
			continue
		}
		if err := c.blobs.Remove(ctx, e.PatientID, e.ID, att.FileName); err != nil {
			c.logger.Warn("blob removal failed during exam delete",
				"exam_id", e.ID, "file", att.FileName, "error", err)
		}
	}

	if err := c.records.DeleteExam(ctx, e.ID); err != nil {
		return common.NewFailure(common.KindRecordWriteFailed, "exam record delete failed", err)
	}

	if note, err := c.findNote(ctx, e); err == nil && note != nil {
		if err := c.notes.DeleteNote(ctx, note.ID); err != nil {
			c.logger.Warn("derived note delete failed", "exam_id", e.ID, "note_id", note.ID, "error", err)
		}
	}
	return nil
}

func (c *Coordinator) upsertNote(ctx context.Context, e *exam.Exam) error {
	existing, err := c.findNote(ctx, e)
	if err != nil {
		return err
	}

	now := c.now().UTC()
	if existing != nil {
		existing.Title = e.Title
		existing.Body = noteBody(e)
		existing.HasResults = !e.Results.Empty()
		existing.UpdatedAt = now
		return c.notes.UpdateNote(ctx, existing)
	}

	note := &exam.DerivedNote{
		PatientID:  e.PatientID,
		ExamID:     e.ID,
		Title:      e.Title,
		Body:       noteBody(e),
		HasResults: !e.Results.Empty(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = c.notes.CreateNote(ctx, note)
	return err
}

func (c *Coordinator) findNote(ctx context.Context, e *exam.Exam) (*exam.DerivedNote, error) {
	notes, err := c.notes.ListNotes(ctx, e.PatientID)
	if err != nil {
		return nil, err
	}
	for _, n := range notes {
		if n.ExamID == e.ID {
			return n, nil
		}
	}
	return nil, nil
}

func noteBody(e *exam.Exam) string {
	var parts []string
	if e.Category != "" {
		parts = append(parts, string(e.Category))
	}
	if !e.ExamDate.IsZero() {
		parts = append(parts, e.ExamDate.Format("2006-01-02"))
	}
	if n := e.Results.Len(); n == 1 {
		parts = append(parts, "1 result")
	} else if n > 1 {
		parts = append(parts, fmt.Sprintf("%d results", n))
	}
	return strings.Join(parts, " · ")
}
