package feed

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Driver delivers raw records to the pipeline one at a time. Next blocks
// until a record is available and returns io.EOF when the source is
// exhausted. The returned slice is only valid until the next call.
type Driver interface {
	Next(ctx context.Context) ([]byte, error)
}

// Recorder appends every raw record, newline terminated, to a log file that
// can later be replayed. Writes go straight to the file so a crash loses at
// most the record in flight.
type Recorder struct {
	mu     sync.Mutex
	buf    []byte // line buffer, reused under mu
	f      *os.File
	path   string
	logger *slog.Logger
}

// OpenRecorder opens path for appending, creating it if needed.
func OpenRecorder(path string, logger *slog.Logger) (*Recorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("feed: open recorder %s: %w", path, err)
	}
	return &Recorder{
		buf:    make([]byte, 0, 4096),
		f:      f,
		path:   path,
		logger: logger.With(slog.String("component", "recorder")),
	}, nil
}

// Record appends raw and a newline.
func (r *Recorder) Record(raw []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(append(r.buf[:0], raw...), '\n')
	if _, err := r.f.Write(r.buf); err != nil {
		return fmt.Errorf("feed: record: %w", err)
	}
	return nil
}

// Path returns the log file path.
func (r *Recorder) Path() string { return r.path }

// Close syncs and closes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.f.Sync(); err != nil {
		r.logger.Warn("recorder sync failed", slog.String("error", err.Error()))
	}
	return r.f.Close()
}

// RecordingDriver tees every record from an inner Driver into a Recorder
// before handing it on. Recording failures are logged, never fatal.
type RecordingDriver struct {
	inner    Driver
	recorder *Recorder
	logger   *slog.Logger
	failed   bool
}

// NewRecordingDriver wraps inner.
func NewRecordingDriver(inner Driver, rec *Recorder, logger *slog.Logger) *RecordingDriver {
	return &RecordingDriver{
		inner:    inner,
		recorder: rec,
		logger:   logger.With(slog.String("component", "recording_driver")),
	}
}

// Next returns the inner driver's next record after recording it.
func (d *RecordingDriver) Next(ctx context.Context) ([]byte, error) {
	raw, err := d.inner.Next(ctx)
	if err != nil {
		return raw, err
	}
	if err := d.recorder.Record(raw); err != nil && !d.failed {
		// Logged once; the stream keeps flowing without the recording.
		d.failed = true
		d.logger.Error("market data recording failed", slog.String("error", err.Error()))
	}
	return raw, nil
}

var _ Driver = (*RecordingDriver)(nil)
var _ io.Closer = (*Recorder)(nil)
