// Package recognize recovers raw text from exam images with a local
// recognition engine.
package recognize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/rfmoraes/clinic-exams/internal/common"
)

// MinUsableTextLen is the threshold below which a recognition run resolves as
// InsufficientText instead of forwarding garbage downstream.
const MinUsableTextLen = 40

// Phase labels reported through the progress callback.
type Phase string

const (
	PhaseInitializing Phase = "initializing engine"
	PhaseLoading      Phase = "loading language"
	PhaseRecognizing  Phase = "recognizing"
	PhaseDone         Phase = "done"
)

// ProgressFunc receives continuous progress (0-100) and a phase label.
type ProgressFunc func(percent int, phase Phase)

type Config struct {
	Tesseract        string // binary name or absolute path; if empty -> "tesseract"
	Lang             string // default "por"
	TessdataDir      string
	ArtifactCacheDir string // workdir root for per-run scratch files

	PSM int // page segmentation; 6 works for uniform blocks of lab text
	OEM int // 1 = LSTM
}

type Result struct {
	Text     string
	Language string
	Duration time.Duration
}

type Recognizer struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Recognizer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Lang == "" {
		cfg.Lang = "por"
	}
	if cfg.ArtifactCacheDir == "" {
		cfg.ArtifactCacheDir = "./tmp"
	}
	if cfg.OEM == 0 {
		cfg.OEM = 1
	}
	return &Recognizer{cfg: cfg, runner: execRunner{}, logger: logger}
}

// Recognize runs the engine over raw image bytes. The scratch directory that
// backs the run is removed on every exit path. Progress is reported through
// onProgress when non-nil.
func (r *Recognizer) Recognize(ctx context.Context, image []byte, onProgress ProgressFunc) (Result, error) {
	start := time.Now()
	report := func(pct int, phase Phase) {
		if onProgress != nil {
			onProgress(pct, phase)
		}
	}

	report(0, PhaseInitializing)
	workdir, err := os.MkdirTemp(r.cfg.ArtifactCacheDir, "recognize-*")
	if err != nil {
		// ArtifactCacheDir may not exist yet on first run.
		if mkErr := os.MkdirAll(r.cfg.ArtifactCacheDir, 0o755); mkErr == nil {
			workdir, err = os.MkdirTemp(r.cfg.ArtifactCacheDir, "recognize-*")
		}
		if err != nil {
			return Result{}, fmt.Errorf("create recognition workdir: %w", err)
		}
	}
	defer func() {
		if rmErr := os.RemoveAll(workdir); rmErr != nil {
			r.logger.Warn("failed to release recognition workdir", "dir", workdir, "error", rmErr)
		}
	}()

	input := filepath.Join(workdir, "input")
	if err := os.WriteFile(input, image, 0o600); err != nil {
		return Result{}, fmt.Errorf("stage image: %w", err)
	}

	report(20, PhaseLoading)
	args := []string{input, "stdout", "-l", r.cfg.Lang}
	if r.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", r.cfg.TessdataDir)
	}
	if r.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", r.cfg.PSM))
	}
	if r.cfg.OEM > 0 {
		args = append(args, "--oem", fmt.Sprintf("%d", r.cfg.OEM))
	}
	// Keep column alignment: downstream analysis pairs test names with values.
	args = append(args, "-c", "preserve_interword_spaces=1")

	report(40, PhaseRecognizing)
	out, errb, err := r.runner.Run(ctx, r.cfg.Tesseract, args...)
	if err != nil {
		if tErr := common.AsTimeout(ctx.Err(), "recognition timed out"); tErr != nil {
			return Result{}, tErr
		}
		return Result{}, fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}

	text := Normalize(string(out))
	if utf8.RuneCountInString(text) < MinUsableTextLen {
		r.logger.Warn("recognized text below usable threshold",
			"runes", utf8.RuneCountInString(text), "min", MinUsableTextLen)
		return Result{}, common.Failuref(common.KindInsufficientText,
			"recognized only %d characters", utf8.RuneCountInString(text))
	}

	report(100, PhaseDone)
	return Result{
		Text:     text,
		Language: r.cfg.Lang,
		Duration: time.Since(start),
	}, nil
}
