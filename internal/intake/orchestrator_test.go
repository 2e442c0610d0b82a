package intake

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/exam"
	"github.com/rfmoraes/clinic-exams/internal/extractor"
	"github.com/rfmoraes/clinic-exams/internal/notify"
	"github.com/rfmoraes/clinic-exams/internal/recognize"
	"github.com/rfmoraes/clinic-exams/internal/results"
)

// --- stubs ---

type stubRecognizer struct {
	RecognizeFunc func(ctx context.Context, image []byte, onProgress recognize.ProgressFunc) (recognize.Result, error)
	CallCount     int32
}

func (s *stubRecognizer) Recognize(ctx context.Context, image []byte, onProgress recognize.ProgressFunc) (recognize.Result, error) {
	atomic.AddInt32(&s.CallCount, 1)
	if s.RecognizeFunc != nil {
		return s.RecognizeFunc(ctx, image, onProgress)
	}
	return recognize.Result{Text: strings.Repeat("TSH 2.1 ", 80)}, nil
}

type stubExtractor struct {
	ExtractTextFunc func(ctx context.Context, text string) (extractor.Outcome, error)
	ExtractFileFunc func(ctx context.Context, fileName, mediaType string, blob io.Reader) (extractor.Outcome, error)

	TextCallCount int32
	FileCallCount int32
	LastText      string
}

func (s *stubExtractor) ExtractText(ctx context.Context, text string) (extractor.Outcome, error) {
	atomic.AddInt32(&s.TextCallCount, 1)
	s.LastText = text
	if s.ExtractTextFunc != nil {
		return s.ExtractTextFunc(ctx, text)
	}
	return extractor.Outcome{Data: results.Set{"Hormonais": {"TSH": "2.1"}}}, nil
}

func (s *stubExtractor) ExtractFile(ctx context.Context, fileName, mediaType string, blob io.Reader) (extractor.Outcome, error) {
	atomic.AddInt32(&s.FileCallCount, 1)
	if s.ExtractFileFunc != nil {
		return s.ExtractFileFunc(ctx, fileName, mediaType, blob)
	}
	return extractor.Outcome{Data: results.Set{"Bioquímica": {"Glicose": "92"}}}, nil
}

type stubBlobs struct {
	DownloadFunc func(ctx context.Context, patientID, examID, fileName string) ([]byte, error)
}

func (s *stubBlobs) Download(ctx context.Context, patientID, examID, fileName string) ([]byte, error) {
	if s.DownloadFunc != nil {
		return s.DownloadFunc(ctx, patientID, examID, fileName)
	}
	return []byte("blob"), nil
}

func newTestSession(e *exam.Exam, rec *stubRecognizer, ext *stubExtractor, blobs BlobFetcher) (*Session, *notify.Recorder) {
	recorder := &notify.Recorder{}
	s := NewSession(e, Deps{
		Recognizer:   rec,
		Extractor:    ext,
		Blobs:        blobs,
		Notifier:     recorder,
		FetchTimeout: 50 * time.Millisecond,
	})
	return s, recorder
}

// --- tests ---

func TestIntakeImageHappyPath(t *testing.T) {
	rec := &stubRecognizer{
		RecognizeFunc: func(_ context.Context, _ []byte, _ recognize.ProgressFunc) (recognize.Result, error) {
			return recognize.Result{Text: strings.Repeat("x", 500)}, nil
		},
	}
	ext := &stubExtractor{}
	e := &exam.Exam{PatientID: "p-1"}
	s, recorder := newTestSession(e, rec, ext, nil)

	s.Intake(context.Background(), []IncomingFile{
		{Name: "lab.png", MediaType: "image/png", Data: []byte("png")},
	})

	assert.EqualValues(t, 1, rec.CallCount)
	assert.EqualValues(t, 1, ext.TextCallCount)
	assert.Len(t, ext.LastText, 500)
	assert.True(t, e.Results.Equal(results.Set{"Hormonais": {"TSH": "2.1"}}))
	assert.NotEmpty(t, e.Title)
	assert.Contains(t, e.Title, "Hormonais")
	assert.Equal(t, 1, strings.Count(e.Observations, processedMarker))
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, recorder.ByLevel(notify.LevelSuccess))
}

func TestProcessedMarkerIsIdempotent(t *testing.T) {
	e := &exam.Exam{PatientID: "p-1"}
	s, _ := newTestSession(e, &stubRecognizer{}, &stubExtractor{}, nil)

	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("lab.png", "image/png", []byte("png")),
	}
	require.NoError(t, s.Process(context.Background(), 0))
	require.NoError(t, s.Process(context.Background(), 0))

	assert.Equal(t, 1, strings.Count(e.Observations, processedMarker))
}

func TestIntakePDFWarningLeavesResultsUntouched(t *testing.T) {
	ext := &stubExtractor{
		ExtractFileFunc: func(context.Context, string, string, io.Reader) (extractor.Outcome, error) {
			return extractor.Outcome{Warning: "no results found"}, nil
		},
	}
	e := &exam.Exam{PatientID: "p-1"}
	s, recorder := newTestSession(e, &stubRecognizer{}, ext, nil)

	s.Intake(context.Background(), []IncomingFile{
		{Name: "report.pdf", MediaType: "application/pdf", Data: []byte("%PDF")},
	})

	assert.True(t, e.Results.Empty())
	assert.Len(t, e.Attachments, 1, "the attachment stays listed")
	assert.Equal(t, []string{"no results found"}, recorder.ByLevel(notify.LevelWarning))
	assert.Equal(t, StateIdle, s.State())
}

func TestReprocessBlobFetchTimeout(t *testing.T) {
	blobs := &stubBlobs{
		DownloadFunc: func(ctx context.Context, _, _, _ string) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	ext := &stubExtractor{}
	e := &exam.Exam{ID: "ex-1", PatientID: "p-1"}
	uploaded := exam.NewAttachment("lab.png", "image/png", nil)
	uploaded.MarkUploaded("https://store/lab.png", time.Now())
	e.Attachments = []*exam.Attachment{uploaded}

	s, recorder := newTestSession(e, &stubRecognizer{}, ext, blobs)
	err := s.Process(context.Background(), 0)

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindTimeout))
	assert.Len(t, e.Attachments, 1)
	assert.True(t, e.Results.Empty())
	assert.Zero(t, ext.TextCallCount)
	assert.Equal(t, StateIdle, s.State())
	assert.NotEmpty(t, recorder.ByLevel(notify.LevelError))
}

func TestIntakeCapWarnsAndKeepsPlainAttachments(t *testing.T) {
	ext := &stubExtractor{}
	e := &exam.Exam{PatientID: "p-1"}
	s, recorder := newTestSession(e, &stubRecognizer{}, ext, nil)

	var files []IncomingFile
	for i := 0; i < MaxIntakeFiles+2; i++ {
		files = append(files, IncomingFile{Name: "data.bin", MediaType: "application/octet-stream", Data: []byte("x")})
	}
	s.Intake(context.Background(), files)

	assert.Len(t, e.Attachments, MaxIntakeFiles+2)
	assert.NotEmpty(t, recorder.ByLevel(notify.LevelWarning))
	assert.Zero(t, ext.TextCallCount)
	assert.Zero(t, ext.FileCallCount)
}

func TestIntakeAutoProcessesOnlyFirstProcessableFile(t *testing.T) {
	rec := &stubRecognizer{}
	ext := &stubExtractor{}
	e := &exam.Exam{PatientID: "p-1"}
	s, _ := newTestSession(e, rec, ext, nil)

	s.Intake(context.Background(), []IncomingFile{
		{Name: "notes.bin", MediaType: "application/octet-stream", Data: []byte("x")},
		{Name: "first.png", MediaType: "image/png", Data: []byte("a")},
		{Name: "second.jpg", MediaType: "image/jpeg", Data: []byte("b")},
	})

	assert.EqualValues(t, 1, rec.CallCount)
	assert.EqualValues(t, 1, ext.TextCallCount)
	assert.Len(t, e.Attachments, 3)
}

func TestProcessUnsupportedFileIsWarning(t *testing.T) {
	e := &exam.Exam{PatientID: "p-1"}
	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("data.bin", "application/octet-stream", []byte("x")),
	}
	s, recorder := newTestSession(e, &stubRecognizer{}, &stubExtractor{}, nil)

	err := s.Process(context.Background(), 0)

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindUnsupported))
	assert.NotEmpty(t, recorder.ByLevel(notify.LevelWarning))
	assert.Empty(t, recorder.ByLevel(notify.LevelError))
	assert.Len(t, e.Attachments, 1)
}

func TestInsufficientTextNeverReachesExtractor(t *testing.T) {
	rec := &stubRecognizer{
		RecognizeFunc: func(context.Context, []byte, recognize.ProgressFunc) (recognize.Result, error) {
			return recognize.Result{}, common.Failuref(common.KindInsufficientText, "recognized only 5 characters")
		},
	}
	ext := &stubExtractor{}
	e := &exam.Exam{PatientID: "p-1"}
	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("blurry.png", "image/png", []byte("x")),
	}
	s, recorder := newTestSession(e, rec, ext, nil)

	err := s.Process(context.Background(), 0)

	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindInsufficientText))
	assert.Zero(t, ext.TextCallCount)
	assert.True(t, e.Results.Empty())
	assert.NotEmpty(t, recorder.ByLevel(notify.LevelWarning))
}

func TestConcurrentProcessIsRejected(t *testing.T) {
	release := make(chan struct{})
	rec := &stubRecognizer{
		RecognizeFunc: func(context.Context, []byte, recognize.ProgressFunc) (recognize.Result, error) {
			<-release
			return recognize.Result{Text: strings.Repeat("x", 100)}, nil
		},
	}
	e := &exam.Exam{PatientID: "p-1"}
	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("a.png", "image/png", []byte("a")),
		exam.NewAttachment("b.png", "image/png", []byte("b")),
	}
	s, _ := newTestSession(e, rec, &stubExtractor{}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Process(context.Background(), 0) }()

	require.Eventually(t, s.Busy, time.Second, time.Millisecond)

	err := s.Process(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindValidationFailed))

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateIdle, s.State())
}

func TestCancelDiscardsLateResult(t *testing.T) {
	release := make(chan struct{})
	rec := &stubRecognizer{
		RecognizeFunc: func(context.Context, []byte, recognize.ProgressFunc) (recognize.Result, error) {
			<-release
			return recognize.Result{Text: strings.Repeat("x", 100)}, nil
		},
	}
	e := &exam.Exam{PatientID: "p-1"}
	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("lab.png", "image/png", []byte("a")),
	}
	s, recorder := newTestSession(e, rec, &stubExtractor{}, nil)

	done := make(chan error, 1)
	go func() { done <- s.Process(context.Background(), 0) }()
	require.Eventually(t, s.Busy, time.Second, time.Millisecond)

	s.Cancel()
	close(release)
	require.NoError(t, <-done)

	assert.True(t, e.Results.Empty(), "a result from an abandoned run must not merge")
	assert.Empty(t, e.Observations)
	assert.Empty(t, recorder.ByLevel(notify.LevelSuccess))
	assert.Equal(t, StateIdle, s.State())
}

func TestTitleSynthesisUsesExamCategoryAndDate(t *testing.T) {
	e := &exam.Exam{
		PatientID: "p-1",
		Category:  "Lipidograma",
		ExamDate:  time.Date(2026, 7, 15, 0, 0, 0, 0, time.UTC),
	}
	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("lab.png", "image/png", []byte("a")),
	}
	s, _ := newTestSession(e, &stubRecognizer{}, &stubExtractor{}, nil)

	require.NoError(t, s.Process(context.Background(), 0))
	assert.Equal(t, "Lipidograma — 2026-07-15", e.Title)
}

func TestExistingTitleIsNotOverwritten(t *testing.T) {
	e := &exam.Exam{PatientID: "p-1", Title: "Check-up anual"}
	e.Attachments = []*exam.Attachment{
		exam.NewAttachment("lab.png", "image/png", []byte("a")),
	}
	s, _ := newTestSession(e, &stubRecognizer{}, &stubExtractor{}, nil)

	require.NoError(t, s.Process(context.Background(), 0))
	assert.Equal(t, "Check-up anual", e.Title)
}
