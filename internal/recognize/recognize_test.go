package recognize

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rfmoraes/clinic-exams/internal/common"
)

type stubRunner struct {
	stdout   string
	err      error
	calls    int
	lastArgs []string
}

func (s *stubRunner) Run(_ context.Context, _ string, args ...string) ([]byte, []byte, error) {
	s.calls++
	s.lastArgs = args
	return []byte(s.stdout), nil, s.err
}

func newTestRecognizer(t *testing.T, runner Runner) *Recognizer {
	t.Helper()
	r := New(Config{Lang: "por", ArtifactCacheDir: t.TempDir()}, nil)
	r.runner = runner
	return r
}

const longText = `TSH ..................... 2.1 uUI/mL
T4 Livre ................ 1.0 ng/dL
Glicose ................. 92 mg/dL
Hemoglobina ............. 14.2 g/dL`

func TestRecognizeHappyPath(t *testing.T) {
	stub := &stubRunner{stdout: longText}
	r := newTestRecognizer(t, stub)

	var phases []Phase
	var lastPct int
	res, err := r.Recognize(context.Background(), []byte("png-bytes"), func(pct int, phase Phase) {
		phases = append(phases, phase)
		assert.GreaterOrEqual(t, pct, lastPct, "progress must be monotonic")
		lastPct = pct
	})

	require.NoError(t, err)
	assert.Contains(t, res.Text, "TSH")
	assert.Equal(t, "por", res.Language)
	assert.Equal(t, 1, stub.calls)
	assert.Equal(t, []Phase{PhaseInitializing, PhaseLoading, PhaseRecognizing, PhaseDone}, phases)
	assert.Equal(t, 100, lastPct)
}

func TestRecognizePreservesInterwordSpacing(t *testing.T) {
	stub := &stubRunner{stdout: longText}
	r := newTestRecognizer(t, stub)

	_, err := r.Recognize(context.Background(), []byte("x"), nil)
	require.NoError(t, err)
	assert.Contains(t, strings.Join(stub.lastArgs, " "), "preserve_interword_spaces=1")
}

func TestRecognizeInsufficientText(t *testing.T) {
	stub := &stubRunner{stdout: "TSH 2.1"}
	r := newTestRecognizer(t, stub)

	_, err := r.Recognize(context.Background(), []byte("x"), nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindInsufficientText))
}

func TestRecognizeEngineFailure(t *testing.T) {
	stub := &stubRunner{err: errors.New("boom")}
	r := newTestRecognizer(t, stub)

	_, err := r.Recognize(context.Background(), []byte("x"), nil)
	require.Error(t, err)
	assert.False(t, common.IsKind(err, common.KindInsufficientText))
}

func TestRecognizeReleasesWorkdir(t *testing.T) {
	cache := t.TempDir()
	r := New(Config{Lang: "por", ArtifactCacheDir: cache}, nil)
	r.runner = &stubRunner{err: errors.New("boom")}

	_, _ = r.Recognize(context.Background(), []byte("x"), nil)

	entries, err := os.ReadDir(cache)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch dir must be released on failure too")
}

func TestRecognizeTimeout(t *testing.T) {
	stub := &stubRunner{err: errors.New("signal: killed")}
	r := newTestRecognizer(t, stub)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	_, err := r.Recognize(ctx, []byte("x"), nil)
	require.Error(t, err)
	assert.True(t, common.IsKind(err, common.KindTimeout))
}

func TestNormalize(t *testing.T) {
	in := "a  \r\nb\t\n\n\n\nc\r"
	assert.Equal(t, "a\nb\n\nc", Normalize(in))
}
