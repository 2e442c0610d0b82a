package persist

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/exam"
)

// --- mocks ---

var _ ExamRecords = (*mockExamRecords)(nil)

type mockExamRecords struct {
	CreateExamFunc func(ctx context.Context, e *exam.Exam) (string, error)
	UpdateExamFunc func(ctx context.Context, e *exam.Exam) error
	DeleteExamFunc func(ctx context.Context, id string) error

	CreateCallCount int32
	UpdateCallCount int32
	DeleteCallCount int32
}

func (m *mockExamRecords) CreateExam(ctx context.Context, e *exam.Exam) (string, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateExamFunc != nil {
		return m.CreateExamFunc(ctx, e)
	}
	return "ex-1", nil
}

func (m *mockExamRecords) UpdateExam(ctx context.Context, e *exam.Exam) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateExamFunc != nil {
		return m.UpdateExamFunc(ctx, e)
	}
	return nil
}

func (m *mockExamRecords) DeleteExam(ctx context.Context, id string) error {
	atomic.AddInt32(&m.DeleteCallCount, 1)
	if m.DeleteExamFunc != nil {
		return m.DeleteExamFunc(ctx, id)
	}
	return nil
}

var _ NoteRecords = (*mockNoteRecords)(nil)

type mockNoteRecords struct {
	ListNotesFunc  func(ctx context.Context, patientID string) ([]*exam.DerivedNote, error)
	CreateNoteFunc func(ctx context.Context, n *exam.DerivedNote) (string, error)
	UpdateNoteFunc func(ctx context.Context, n *exam.DerivedNote) error
	DeleteNoteFunc func(ctx context.Context, id string) error

	CreateCallCount int32
	UpdateCallCount int32
	DeleteCallCount int32
	ListCallCount   int32
}

func (m *mockNoteRecords) ListNotes(ctx context.Context, patientID string) ([]*exam.DerivedNote, error) {
	atomic.AddInt32(&m.ListCallCount, 1)
	if m.ListNotesFunc != nil {
		return m.ListNotesFunc(ctx, patientID)
	}
	return nil, nil
}

func (m *mockNoteRecords) CreateNote(ctx context.Context, n *exam.DerivedNote) (string, error) {
	atomic.AddInt32(&m.CreateCallCount, 1)
	if m.CreateNoteFunc != nil {
		return m.CreateNoteFunc(ctx, n)
	}
	return "n-1", nil
}

func (m *mockNoteRecords) UpdateNote(ctx context.Context, n *exam.DerivedNote) error {
	atomic.AddInt32(&m.UpdateCallCount, 1)
	if m.UpdateNoteFunc != nil {
		return m.UpdateNoteFunc(ctx, n)
	}
	return nil
}

func (m *mockNoteRecords) DeleteNote(ctx context.Context, id string) error {
	atomic.AddInt32(&m.DeleteCallCount, 1)
	if m.DeleteNoteFunc != nil {
		return m.DeleteNoteFunc(ctx, id)
	}
	return nil
}

var _ AttachmentBlobs = (*mockBlobs)(nil)

type mockBlobs struct {
	UploadFunc func(ctx context.Context, patientID, examID string, att *exam.Attachment) (string, error)
	RemoveFunc func(ctx context.Context, patientID, examID, fileName string) error

	UploadCallCount int32
	RemoveCallCount int32
}

func (m *mockBlobs) Upload(ctx context.Context, patientID, examID string, att *exam.Attachment) (string, error) {
	atomic.AddInt32(&m.UploadCallCount, 1)
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, patientID, examID, att)
	}
	return "https://store/" + att.FileName, nil
}

func (m *mockBlobs) Remove(ctx context.Context, patientID, examID, fileName string) error {
	atomic.AddInt32(&m.RemoveCallCount, 1)
	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, patientID, examID, fileName)
	}
	return nil
}

func newTestCoordinator(records *mockExamRecords, notes *mockNoteRecords, blobs *mockBlobs) *Coordinator {
	c := NewCoordinator(records, notes, blobs, nil)
	c.policy = common.RetryPolicy{Attempts: 3, Backoff: time.Millisecond}
	return c
}

func newUnsavedExam() *exam.Exam {
	return &exam.Exam{
		PatientID: "p-1",
		Title:     "Hormonais — 2026-08-01",
		ExamDate:  time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		Category:  "Hormonais",
	}
}

// --- tests ---

func TestSaveEmptyTitleIsValidationFailure(t *testing.T) {
	records := &mockExamRecords{}
	notes := &mockNoteRecords{}
	blobs := &mockBlobs{}
	c := newTestCoordinator(records, notes, blobs)

	e := newUnsavedExam()
	e.Title = "   "
	_, err := c.Save(context.Background(), e)

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindValidationFailed))
	assert.Zero(t, records.CreateCallCount, "validation must run before any network activity")
	assert.Zero(t, records.UpdateCallCount)
	assert.Zero(t, blobs.UploadCallCount)
	assert.Zero(t, notes.ListCallCount)
}

func TestSaveAssignsIDAndCreatesNote(t *testing.T) {
	records := &mockExamRecords{}
	notes := &mockNoteRecords{}
	c := newTestCoordinator(records, notes, &mockBlobs{})

	e := newUnsavedExam()
	out, err := c.Save(context.Background(), e)

	require.NoError(t, err)
	assert.Equal(t, "ex-1", out.ID)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.True(t, e.Persisted())
	assert.EqualValues(t, 1, notes.CreateCallCount)
	assert.Zero(t, notes.UpdateCallCount)
}

func TestSaveRetriesRecordWrite(t *testing.T) {
	attempts := 0
	records := &mockExamRecords{
		CreateExamFunc: func(context.Context, *exam.Exam) (string, error) {
			attempts++
			if attempts < 3 {
				return "", errors.New("store hiccup")
			}
			return "ex-1", nil
		},
	}
	c := newTestCoordinator(records, &mockNoteRecords{}, &mockBlobs{})

	out, err := c.Save(context.Background(), newUnsavedExam())

	require.NoError(t, err)
	assert.Equal(t, "ex-1", out.ID)
	assert.Equal(t, 3, attempts)
}

func TestSaveRecordWriteFailedAfterRetryExhaustion(t *testing.T) {
	records := &mockExamRecords{
		CreateExamFunc: func(context.Context, *exam.Exam) (string, error) {
			return "", errors.New("store down")
		},
	}
	blobs := &mockBlobs{}
	c := newTestCoordinator(records, &mockNoteRecords{}, blobs)

	_, err := c.Save(context.Background(), newUnsavedExam())

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindRecordWriteFailed))
	assert.EqualValues(t, 3, records.CreateCallCount)
	assert.Zero(t, blobs.UploadCallCount, "uploads must not start when the record write fails")
}

func TestSavePartialUploadFailure(t *testing.T) {
	records := &mockExamRecords{}
	blobs := &mockBlobs{
		UploadFunc: func(_ context.Context, _, _ string, att *exam.Attachment) (string, error) {
			if att.FileName == "b.pdf" {
				return "", errors.New("upload refused")
			}
			return "https://store/" + att.FileName, nil
		},
	}
	c := newTestCoordinator(records, &mockNoteRecords{}, blobs)

	e := newUnsavedExam()
	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("a.png", "image/png", []byte("a")),
		exam.NewAttachment("b.pdf", "application/pdf", []byte("b")),
		exam.NewAttachment("c.jpg", "image/jpeg", []byte("c")),
	}

	out, err := c.Save(context.Background(), e)

	require.NoError(t, err, "partial upload is a valid terminal outcome, not an error")
	assert.Equal(t, StatusPartialUpload, out.Status)
	assert.Len(t, out.Applied, 2)
	assert.Len(t, out.Fails, 1)
	assert.Equal(t, "b.pdf", out.Fails[0].FileName)
	assert.True(t, e.Persisted(), "the record stays durable despite the failed upload")

	// the failed attachment still holds its local payload for a later retry
	for _, a := range e.Attachments {
		if a.FileName == "b.pdf" {
			assert.False(t, a.Uploaded())
			assert.NotNil(t, a.Data)
		} else {
			assert.True(t, a.Uploaded())
			assert.Nil(t, a.Data)
		}
	}
}

func TestSaveSkipsAlreadyUploadedAttachments(t *testing.T) {
	records := &mockExamRecords{}
	blobs := &mockBlobs{}
	c := newTestCoordinator(records, &mockNoteRecords{}, blobs)

	e := newUnsavedExam()
	e.ID = "ex-1"
	done := exam.NewAttachment("done.png", "image/png", []byte("x"))
	done.MarkUploaded("https://store/done.png", time.Now())
	e.Attachments = []*exam.Attachment{done}

	out, err := c.Save(context.Background(), e)

	require.NoError(t, err)
	assert.Zero(t, blobs.UploadCallCount)
	assert.Empty(t, out.Applied)
	assert.Equal(t, StatusSuccess, out.Status)
}

func TestSaveUpdatesExistingNoteInsteadOfRecreating(t *testing.T) {
	notes := &mockNoteRecords{
		ListNotesFunc: func(context.Context, string) ([]*exam.DerivedNote, error) {
			return []*exam.DerivedNote{
				{ID: "n-other", PatientID: "p-1", ExamID: "ex-9"},
				{ID: "n-1", PatientID: "p-1", ExamID: "ex-1", Title: "old title"},
			}, nil
		},
	}
	c := newTestCoordinator(&mockExamRecords{}, notes, &mockBlobs{})

	e := newUnsavedExam()
	e.ID = "ex-1"
	_, err := c.Save(context.Background(), e)

	require.NoError(t, err)
	assert.Zero(t, notes.CreateCallCount)
	assert.EqualValues(t, 1, notes.UpdateCallCount)
}

func TestSaveSwallowsNoteFailure(t *testing.T) {
	notes := &mockNoteRecords{
		ListNotesFunc: func(context.Context, string) ([]*exam.DerivedNote, error) {
			return nil, errors.New("notes unavailable")
		},
	}
	c := newTestCoordinator(&mockExamRecords{}, notes, &mockBlobs{})

	out, err := c.Save(context.Background(), newUnsavedExam())

	require.NoError(t, err, "note upsert failure must never roll back the save")
	assert.Equal(t, StatusSuccess, out.Status)
}

func TestSaveUploadsRunConcurrently(t *testing.T) {
	var inFlight, peak int32
	blobs := &mockBlobs{
		UploadFunc: func(_ context.Context, _, _ string, att *exam.Attachment) (string, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			return "https://store/" + att.FileName, nil
		},
	}
	c := newTestCoordinator(&mockExamRecords{}, &mockNoteRecords{}, blobs)

	e := newUnsavedExam()
	for i := 0; i < 4; i++ {
		e.Attachments = append(e.Attachments,
			exam.NewAttachment(fmt.Sprintf("f%d.png", i), "image/png", []byte("x")))
	}

	out, err := c.Save(context.Background(), e)

	require.NoError(t, err)
	assert.Len(t, out.Applied, 4)
	assert.Greater(t, peak, int32(1), "uploads should overlap")
}

func TestDeleteRemovesBlobsRecordAndNote(t *testing.T) {
	records := &mockExamRecords{}
	notes := &mockNoteRecords{
		ListNotesFunc: func(context.Context, string) ([]*exam.DerivedNote, error) {
			return []*exam.DerivedNote{{ID: "n-1", ExamID: "ex-1"}}, nil
		},
	}
	blobs := &mockBlobs{}
	c := newTestCoordinator(records, notes, blobs)

	e := newUnsavedExam()
	e.ID = "ex-1"
	att := exam.NewAttachment("a.png", "image/png", []byte("x"))
	att.MarkUploaded("https://store/a.png", time.Now())
	e.Attachments = []*exam.Attachment{att}

	require.NoError(t, c.Delete(context.Background(), e))
	assert.EqualValues(t, 1, blobs.RemoveCallCount)
	assert.EqualValues(t, 1, records.DeleteCallCount)
	assert.EqualValues(t, 1, notes.DeleteCallCount)
}
