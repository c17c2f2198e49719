package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

const logContentType = "application/x-ndjson"

// ArchiverConfig controls segment naming and cadence.
type ArchiverConfig struct {
	// Path is the local recorder file.
	Path string
	// Prefix is the key prefix; segments land at
	// <prefix>/<symbol>/<start>-<run>/<seq>.log.
	Prefix   string
	Symbol   string
	RunID    string
	Interval time.Duration
}

// Archiver ships the bytes a run appends to the recorder file to object
// storage as numbered segments. Each segment ends on a record boundary, so
// listing a run's prefix and concatenating the segments in key order yields
// a valid replay log.
type Archiver struct {
	cfg    ArchiverConfig
	writer domain.BlobWriter
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	base    string
	offset  int64
	seq     int
	started bool
}

// NewArchiver creates an Archiver. Call Start before the recorder writes
// anything for the run.
func NewArchiver(cfg ArchiverConfig, writer domain.BlobWriter, logger *slog.Logger) *Archiver {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Archiver{
		cfg:    cfg,
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
		now:    time.Now,
	}
}

// Start records the current end of the file as the run's first byte. Data
// appended by earlier runs is never uploaded again.
func (a *Archiver) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	fi, err := os.Stat(a.cfg.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		a.offset = 0
	case err != nil:
		return fmt.Errorf("s3blob: archiver stat %s: %w", a.cfg.Path, err)
	default:
		a.offset = fi.Size()
	}
	a.base = fmt.Sprintf("%s/%s/%s-%s",
		a.cfg.Prefix, a.cfg.Symbol, a.now().UTC().Format("20060102T150405Z"), a.cfg.RunID)
	a.started = true
	return nil
}

// Run flushes a segment every interval until ctx is cancelled, then performs
// a final flush with a fresh context so the tail of the run is not lost.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if _, err := a.Flush(flushCtx); err != nil {
				a.logger.Error("final archive flush failed", slog.String("error", err.Error()))
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.Flush(ctx); err != nil {
				a.logger.Error("archive flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Flush uploads every complete record appended since the last flush and
// returns the uploaded key, or "" when there was nothing new.
func (a *Archiver) Flush(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return "", fmt.Errorf("s3blob: archiver not started")
	}

	f, err := os.Open(a.cfg.Path)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archiver open %s: %w", a.cfg.Path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("s3blob: archiver stat %s: %w", a.cfg.Path, err)
	}
	if fi.Size() <= a.offset {
		return "", nil
	}

	chunk := make([]byte, fi.Size()-a.offset)
	if _, err := f.ReadAt(chunk, a.offset); err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("s3blob: archiver read %s: %w", a.cfg.Path, err)
	}
	// Hold back a partially written trailing record.
	end := bytes.LastIndexByte(chunk, '\n') + 1
	if end == 0 {
		return "", nil
	}
	chunk = chunk[:end]

	key := fmt.Sprintf("%s/%06d.log", a.base, a.seq+1)
	if int64(len(chunk)) >= MinPartSize {
		err = a.writer.PutMultipart(ctx, key, bytes.NewReader(chunk), MinPartSize)
	} else {
		err = a.writer.Put(ctx, key, bytes.NewReader(chunk), logContentType)
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive segment %s: %w", key, err)
	}

	a.seq++
	a.offset += int64(end)
	a.logger.Info("archived log segment",
		slog.String("key", key),
		slog.Int("bytes", end),
	)
	return key, nil
}

// Prefix returns the key prefix under which this run's segments are stored.
func (a *Archiver) Prefix() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.base + "/"
}
