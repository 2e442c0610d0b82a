package store

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/rfmoraes/clinic-exams/internal/exam"
)

// BlobPath derives the single canonical storage path for an attachment.
func BlobPath(patientID, examID, fileName string) string {
	return path.Join("exams", patientID, examID, fileName)
}

// Attachments adapts the blob side of the store to attachment operations.
type Attachments struct {
	client *Client
	log    *slog.Logger
}

func NewAttachments(client *Client, logger *slog.Logger) *Attachments {
	if logger == nil {
		logger = slog.Default()
	}
	return &Attachments{client: client, log: logger}
}

// Upload stores the attachment's local payload and returns the remote URL.
// The attachment itself is not mutated; callers apply the URL once they
// decide the upload counts.
func (s *Attachments) Upload(ctx context.Context, patientID, examID string, att *exam.Attachment) (string, error) {
	p := BlobPath(patientID, examID, att.FileName)
	url, err := s.client.UploadBlob(ctx, p, att.FileName, att.MediaType, att.Data)
	if err != nil {
		s.log.Error("attachment upload failed",
			"patient_id", patientID, "exam_id", examID, "file", att.FileName, "error", err)
		return "", err
	}
	s.log.Info("attachment uploaded",
		"patient_id", patientID, "exam_id", examID, "file", att.FileName, "url", url)
	return url, nil
}

// Remove deletes the remote blob for an attachment.
func (s *Attachments) Remove(ctx context.Context, patientID, examID, fileName string) error {
	return s.client.DeleteBlob(ctx, BlobPath(patientID, examID, fileName))
}

// Download fetches the remote payload, used when re-processing an attachment
// whose local bytes are gone.
func (s *Attachments) Download(ctx context.Context, patientID, examID, fileName string) ([]byte, error) {
	start := time.Now()
	data, err := s.client.DownloadBlob(ctx, BlobPath(patientID, examID, fileName))
	if err != nil {
		return nil, err
	}
	s.log.Debug("attachment downloaded",
		"file", fileName, "bytes", len(data), "elapsed_ms", time.Since(start).Milliseconds())
	return data, nil
}

// ResolveURL confirms the blob exists and returns its canonical URL.
func (s *Attachments) ResolveURL(ctx context.Context, patientID, examID, fileName string) (string, error) {
	p := BlobPath(patientID, examID, fileName)
	if err := s.client.StatBlob(ctx, p); err != nil {
		return "", err
	}
	return s.client.BlobURL(p), nil
}
