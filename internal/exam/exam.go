// Package exam holds the aggregate persisted for one laboratory exam entry.
package exam

import (
	"fmt"
	"time"

	"github.com/rfmoraes/clinic-exams/constants"
	"github.com/rfmoraes/clinic-exams/internal/results"
)

// Attachment is one file associated with an exam. Before upload it carries
// the raw bytes in Data; after a successful upload it carries RemoteURL and
// Data is released. Exactly one of the two is populated once a save cycle
// settles.
type Attachment struct {
	FileName   string    `json:"fileName"`
	MediaType  string    `json:"mediaType"`
	SizeLabel  string    `json:"sizeLabel"`
	Data       []byte    `json:"-"`
	RemoteURL  string    `json:"remoteUrl,omitempty"`
	UploadedAt time.Time `json:"uploadedAt,omitempty"`
}

// NewAttachment builds an attachment from a freshly chosen file.
func NewAttachment(fileName, mediaType string, data []byte) *Attachment {
	return &Attachment{
		FileName:  fileName,
		MediaType: mediaType,
		SizeLabel: HumanSize(int64(len(data))),
		Data:      data,
	}
}

// Uploaded reports whether the attachment already lives in the blob store.
func (a *Attachment) Uploaded() bool {
	return a.RemoteURL != ""
}

// MarkUploaded records the remote location and releases the local payload.
func (a *Attachment) MarkUploaded(remoteURL string, at time.Time) {
	a.RemoteURL = remoteURL
	a.UploadedAt = at
	a.Data = nil
}

// Exam is the aggregate root. It owns its attachments and its result set
// exclusively; nothing else mutates them.
type Exam struct {
	ID           string             `json:"id,omitempty"`
	PatientID    string             `json:"patientId"`
	Title        string             `json:"title"`
	ExamDate     time.Time          `json:"examDate"`
	Category     constants.Category `json:"category"`
	Observations string             `json:"observations,omitempty"`
	Attachments  []*Attachment      `json:"attachments"`
	Results      results.Set        `json:"results"`
	CreatedAt    time.Time          `json:"createdAt,omitempty"`
	UpdatedAt    time.Time          `json:"updatedAt,omitempty"`
}

// Persisted reports whether the exam has been saved at least once.
func (e *Exam) Persisted() bool {
	return e.ID != ""
}

// PendingAttachments returns the attachments still holding only a local
// payload, in their current order.
func (e *Exam) PendingAttachments() []*Attachment {
	var out []*Attachment
	for _, a := range e.Attachments {
		if !a.Uploaded() && a.Data != nil {
			out = append(out, a)
		}
	}
	return out
}

// RemoveAttachment drops the attachment at index i and returns it; callers
// delete the remote blob when one exists.
func (e *Exam) RemoveAttachment(i int) *Attachment {
	if i < 0 || i >= len(e.Attachments) {
		return nil
	}
	a := e.Attachments[i]
	e.Attachments = append(e.Attachments[:i], e.Attachments[i+1:]...)
	return a
}

// DerivedNote mirrors an exam in the patient timeline. It references the
// exam weakly by id; lookups scan the patient's notes for a match.
type DerivedNote struct {
	ID         string    `json:"id,omitempty"`
	PatientID  string    `json:"patientId"`
	ExamID     string    `json:"examId"`
	Title      string    `json:"title"`
	Body       string    `json:"body,omitempty"`
	HasResults bool      `json:"hasResults"`
	CreatedAt  time.Time `json:"createdAt,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// HumanSize renders a byte count the way the attachment list shows it.
func HumanSize(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
