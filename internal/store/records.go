package store

import (
	"context"
	"log/slog"

	"github.com/rfmoraes/clinic-exams/internal/exam"
)

// Collections the clinic application keeps in the document store.
const (
	CollectionExams = "exams"
	CollectionNotes = "notes"
)

// Records adapts the document side of the store to exam and note CRUD.
type Records struct {
	client *Client
	log    *slog.Logger
}

func NewRecords(client *Client, logger *slog.Logger) *Records {
	if logger == nil {
		logger = slog.Default()
	}
	return &Records{client: client, log: logger}
}

func (r *Records) CreateExam(ctx context.Context, e *exam.Exam) (string, error) {
	id, err := r.client.CreateDocument(ctx, CollectionExams, e)
	if err != nil {
		r.log.Error("create exam failed", "patient_id", e.PatientID, "error", err)
		return "", err
	}
	return id, nil
}

func (r *Records) GetExam(ctx context.Context, id string) (*exam.Exam, error) {
	var e exam.Exam
	if err := r.client.GetDocument(ctx, CollectionExams, id, &e); err != nil {
		return nil, err
	}
	e.ID = id
	return &e, nil
}

func (r *Records) UpdateExam(ctx context.Context, e *exam.Exam) error {
	return r.client.UpdateDocument(ctx, CollectionExams, e.ID, e)
}

func (r *Records) DeleteExam(ctx context.Context, id string) error {
	return r.client.DeleteDocument(ctx, CollectionExams, id)
}

// ListNotes returns every timeline note of one patient. The store keeps no
// index on exam references, so derived-note lookups scan this list.
func (r *Records) ListNotes(ctx context.Context, patientID string) ([]*exam.DerivedNote, error) {
	var notes []*exam.DerivedNote
	err := r.client.ListDocuments(ctx, CollectionNotes, map[string]string{"patientId": patientID}, &notes)
	if err != nil {
		r.log.Error("list notes failed", "patient_id", patientID, "error", err)
		return nil, err
	}
	return notes, nil
}

func (r *Records) CreateNote(ctx context.Context, n *exam.DerivedNote) (string, error) {
	return r.client.CreateDocument(ctx, CollectionNotes, n)
}

func (r *Records) UpdateNote(ctx context.Context, n *exam.DerivedNote) error {
	return r.client.UpdateDocument(ctx, CollectionNotes, n.ID, n)
}

func (r *Records) DeleteNote(ctx context.Context, id string) error {
	return r.client.DeleteDocument(ctx, CollectionNotes, id)
}
