// Package intake drives one exam editing session through the extraction
// pipeline: classify each incoming file, route it to local recognition or the
// remote extraction boundary, and merge the structured payload into the exam.
package intake

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rfmoraes/clinic-exams/internal/classify"
	"github.com/rfmoraes/clinic-exams/internal/common"
	"github.com/rfmoraes/clinic-exams/internal/exam"
	"github.com/rfmoraes/clinic-exams/internal/extractor"
	"github.com/rfmoraes/clinic-exams/internal/notify"
	"github.com/rfmoraes/clinic-exams/internal/recognize"
)

// MaxIntakeFiles caps one intake batch. Files beyond the cap are kept as
// plain attachments and never routed into extraction.
const MaxIntakeFiles = 10

// processedMarker is the substring that keeps the observations note
// idempotent across repeated extraction runs.
const processedMarker = "processed automatically"

// State is the session's single source of truth. Every exit path, success or
// not, returns the session to StateIdle.
type State string

const (
	StateIdle        State = "idle"
	StateClassifying State = "classifying"
	StateRecognizing State = "recognizing"
	StateExtracting  State = "extracting"
	StateMerging     State = "merging"
)

// TextRecognizer is the local recognition seam.
type TextRecognizer interface {
	Recognize(ctx context.Context, image []byte, onProgress recognize.ProgressFunc) (recognize.Result, error)
}

// Extractor is the remote extraction seam, one client with two call shapes.
type Extractor interface {
	ExtractText(ctx context.Context, text string) (extractor.Outcome, error)
	ExtractFile(ctx context.Context, fileName, mediaType string, blob io.Reader) (extractor.Outcome, error)
}

// BlobFetcher re-downloads an uploaded attachment so it can be re-processed.
type BlobFetcher interface {
	Download(ctx context.Context, patientID, examID, fileName string) ([]byte, error)
}

// IncomingFile is one file as handed over by the surrounding application.
type IncomingFile struct {
	Name      string
	MediaType string
	Data      []byte
}

type Deps struct {
	Recognizer TextRecognizer
	Extractor  Extractor
	Blobs      BlobFetcher
	Notifier   notify.Notifier
	Logger     *slog.Logger

	// OnProgress receives the recognizer's fine-grained progress when set.
	OnProgress recognize.ProgressFunc

	// FetchTimeout bounds the blob re-download on the re-process path.
	FetchTimeout time.Duration
}

// Session owns one exam while it is being edited. It is the only writer of
// the exam's attachments and result set for its lifetime.
type Session struct {
	exam *exam.Exam
	deps Deps

	mu       sync.Mutex
	state    State
	busy     bool
	runToken uint64

	now func() time.Time
}

func NewSession(e *exam.Exam, deps Deps) *Session {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Notifier == nil {
		deps.Notifier = &notify.LogNotifier{Logger: deps.Logger}
	}
	if deps.FetchTimeout <= 0 {
		deps.FetchTimeout = 30 * time.Second
	}
	return &Session{
		exam:  e,
		deps:  deps,
		state: StateIdle,
		now:   time.Now,
	}
}

// State returns the session's current pipeline state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Busy reports whether an extraction is currently in flight.
func (s *Session) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.busy
}

// Cancel abandons the in-flight run, if any. The underlying work may keep
// running but its result is discarded at the merge boundary.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runToken++
	s.busy = false
	s.state = StateIdle
}

// Intake accepts newly selected files. Every file becomes an attachment; the
// first processable file within the cap is auto-processed, the rest wait for
// a manual Process call. Extraction failures never abort the intake itself.
func (s *Session) Intake(ctx context.Context, files []IncomingFile) {
	if len(files) == 0 {
		return
	}
	if len(files) > MaxIntakeFiles {
		s.deps.Notifier.Notify(notify.LevelWarning, fmt.Sprintf(
			"only the first %d files will be considered for extraction; the rest were attached as plain files",
			MaxIntakeFiles))
	}

	autoIndex := -1
	for i, f := range files {
		att := exam.NewAttachment(f.Name, f.MediaType, f.Data)
		s.exam.Attachments = append(s.exam.Attachments, att)

		if autoIndex >= 0 || i >= MaxIntakeFiles {
			continue
		}
		if classify.File(f.Name, f.MediaType).IsSupported {
			autoIndex = len(s.exam.Attachments) - 1
		}
	}

	if autoIndex < 0 {
		return
	}
	if err := s.Process(ctx, autoIndex); err != nil {
		// Already notified inside Process; the attachment stays.
		s.deps.Logger.Debug("auto-process did not produce results",
			"file", s.exam.Attachments[autoIndex].FileName, "error", err)
	}
}

// Process runs the extraction pipeline over the attachment at index i. Only
// one extraction runs at a time; a concurrent call is rejected so the shared
// in-progress state and the remote boundary are never contended.
func (s *Session) Process(ctx context.Context, i int) error {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return common.Failuref(common.KindValidationFailed, "another file is already being processed")
	}
	if i < 0 || i >= len(s.exam.Attachments) {
		s.mu.Unlock()
		return common.Failuref(common.KindValidationFailed, "no attachment at index %d", i)
	}
	att := s.exam.Attachments[i]
	s.busy = true
	s.runToken++
	token := s.runToken
	s.state = StateClassifying
	s.mu.Unlock()

	defer s.settle(token)

	err := s.process(ctx, token, att)
	if err != nil {
		s.notifyFailure(att.FileName, err)
	}
	return err
}

// settle restores Idle unless a newer run has already taken over the session.
func (s *Session) settle(token uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runToken != token {
		return
	}
	s.busy = false
	s.state = StateIdle
}

func (s *Session) process(ctx context.Context, token uint64, att *exam.Attachment) error {
	c := classify.File(att.FileName, att.MediaType)
	if !c.IsSupported {
		return common.Failuref(common.KindUnsupported, "%q is not a supported exam document", att.FileName)
	}

	data := att.Data
	if data == nil {
		if !att.Uploaded() {
			return common.Failuref(common.KindValidationFailed, "%q has no payload to process", att.FileName)
		}
		var err error
		data, err = s.fetchBlob(ctx, att.FileName)
		if err != nil {
			return err
		}
	}

	var out extractor.Outcome
	var err error
	if c.IsImage {
		out, err = s.recognizeAndExtract(ctx, token, data)
	} else {
		s.setState(token, StateExtracting)
		out, err = s.deps.Extractor.ExtractFile(ctx, att.FileName, att.MediaType, bytes.NewReader(data))
	}
	if err != nil {
		return err
	}

	return s.merge(token, att.FileName, out)
}

func (s *Session) recognizeAndExtract(ctx context.Context, token uint64, image []byte) (extractor.Outcome, error) {
	s.setState(token, StateRecognizing)
	res, err := s.deps.Recognizer.Recognize(ctx, image, s.deps.OnProgress)
	if err != nil {
		return extractor.Outcome{}, err
	}

	s.setState(token, StateExtracting)
	return s.deps.Extractor.ExtractText(ctx, res.Text)
}

func (s *Session) fetchBlob(ctx context.Context, fileName string) ([]byte, error) {
	if s.deps.Blobs == nil {
		return nil, common.Failuref(common.KindValidationFailed, "no blob store configured to re-download %q", fileName)
	}
	ctx, cancel := context.WithTimeout(ctx, s.deps.FetchTimeout)
	defer cancel()

	data, err := s.deps.Blobs.Download(ctx, s.exam.PatientID, s.exam.ID, fileName)
	if err != nil {
		return nil, common.AsTimeout(err, "attachment download timed out")
	}
	return data, nil
}

// merge is the single point where extraction output touches shared state. A
// result carrying a stale token is dropped without effect.
func (s *Session) merge(token uint64, fileName string, out extractor.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runToken != token {
		s.deps.Logger.Info("discarding result from abandoned run", "file", fileName)
		return nil
	}
	s.state = StateMerging

	if out.Warning != "" {
		s.deps.Notifier.Notify(notify.LevelWarning, out.Warning)
		return nil
	}

	s.exam.Results = s.exam.Results.Merge(out.Data)
	if strings.TrimSpace(s.exam.Title) == "" {
		s.exam.Title = s.synthesizeTitle()
	}
	s.markProcessed()

	s.deps.Notifier.Notify(notify.LevelSuccess, fmt.Sprintf("%q processed: %d results extracted", fileName, out.Data.Len()))
	return nil
}

func (s *Session) setState(token uint64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runToken == token {
		s.state = st
	}
}

func (s *Session) notifyFailure(fileName string, err error) {
	level := notify.LevelError
	if common.IsKind(err, common.KindUnsupported) || common.IsKind(err, common.KindInsufficientText) {
		level = notify.LevelWarning
	}
	s.deps.Notifier.Notify(level, fmt.Sprintf("could not process %q: %v", fileName, err))
}

// synthesizeTitle builds "<Category> — <date>" from whatever is known.
func (s *Session) synthesizeTitle() string {
	category := string(s.exam.Category)
	if category == "" {
		if cats := s.exam.Results.Categories(); len(cats) > 0 {
			category = cats[0]
		} else {
			category = "Exame"
		}
	}
	date := s.exam.ExamDate
	if date.IsZero() {
		date = s.now()
	}
	return fmt.Sprintf("%s — %s", category, date.Format("2006-01-02"))
}

// markProcessed appends the observational note exactly once.
func (s *Session) markProcessed() {
	if strings.Contains(s.exam.Observations, processedMarker) {
		return
	}
	line := fmt.Sprintf("[%s] results %s", s.now().Format("2006-01-02 15:04"), processedMarker)
	if s.exam.Observations != "" {
		s.exam.Observations += "\n"
	}
	s.exam.Observations += line
}
