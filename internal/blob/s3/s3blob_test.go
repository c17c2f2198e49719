package s3blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type memWriter struct {
	objects   map[string]string
	multipart int
	err       error
}

func (m *memWriter) Put(_ context.Context, path string, data io.Reader, _ string) error {
	if m.err != nil {
		return m.err
	}
	b, _ := io.ReadAll(data)
	m.objects[path] = string(b)
	return nil
}

func (m *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	m.multipart++
	return m.Put(ctx, path, data, "")
}

func newTestArchiver(t *testing.T, path string, w *memWriter) *Archiver {
	t.Helper()
	a := NewArchiver(ArchiverConfig{
		Path: path, Prefix: "md", Symbol: "BTCUSD", RunID: "run1",
	}, w, slog.New(slog.NewTextHandler(io.Discard, nil)))
	a.now = func() time.Time { return time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC) }
	return a
}

func appendFile(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if _, err := f.WriteString(s); err != nil {
		t.Fatal(err)
	}
}

func TestArchiverSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	appendFile(t, path, "old-run-1\nold-run-2\n")

	w := &memWriter{objects: map[string]string{}}
	a := newTestArchiver(t, path, w)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if key, err := a.Flush(ctx); err != nil || key != "" {
		t.Fatalf("empty flush = %q, %v", key, err)
	}

	appendFile(t, path, "r1\nr2\npart")
	key, err := a.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if key != "md/BTCUSD/20240506T070809Z-run1/000001.log" {
		t.Errorf("key = %q", key)
	}
	if got := w.objects[key]; got != "r1\nr2\n" {
		t.Errorf("segment 1 = %q", got)
	}

	appendFile(t, path, "ial\nr4\n")
	key, err = a.Flush(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got := w.objects[key]; got != "partial\nr4\n" {
		t.Errorf("segment 2 = %q", got)
	}
	if !strings.HasSuffix(key, "/000002.log") {
		t.Errorf("key = %q", key)
	}
	if a.Prefix() != "md/BTCUSD/20240506T070809Z-run1/" {
		t.Errorf("prefix = %q", a.Prefix())
	}
	if w.multipart != 0 {
		t.Errorf("small segments should use a single put")
	}
}

func TestArchiverLargeSegmentUsesMultipart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	w := &memWriter{objects: map[string]string{}}
	a := newTestArchiver(t, path, w)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}

	line := strings.Repeat("x", 1023) + "\n"
	appendFile(t, path, strings.Repeat(line, int(MinPartSize/1024)+1))
	if _, err := a.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if w.multipart != 1 {
		t.Errorf("multipart uploads = %d, want 1", w.multipart)
	}
}

func TestArchiverUploadFailureRetries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	w := &memWriter{objects: map[string]string{}, err: errors.New("boom")}
	a := newTestArchiver(t, path, w)
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	appendFile(t, path, "r1\n")

	if _, err := a.Flush(context.Background()); err == nil {
		t.Fatal("expected upload error")
	}
	w.err = nil
	key, err := a.Flush(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(key, "/000001.log") || w.objects[key] != "r1\n" {
		t.Errorf("retry uploaded %q = %q", key, w.objects[key])
	}
}

func TestArchiverRunFlushesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	w := &memWriter{objects: map[string]string{}}
	a := newTestArchiver(t, path, w)
	a.cfg.Interval = time.Hour
	if err := a.Start(); err != nil {
		t.Fatal(err)
	}
	appendFile(t, path, "tail\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run = %v", err)
	}
	var found bool
	for _, v := range w.objects {
		found = found || bytes.Equal([]byte(v), []byte("tail\n"))
	}
	if !found {
		t.Errorf("final flush missing, objects %v", w.objects)
	}
}

func TestFlushBeforeStart(t *testing.T) {
	a := newTestArchiver(t, filepath.Join(t.TempDir(), "x.log"), &memWriter{objects: map[string]string{}})
	if _, err := a.Flush(context.Background()); err == nil {
		t.Error("expected error before Start")
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		ssl    bool
		expect string
	}{
		{"https://e2.example.com", false, "https://e2.example.com"},
		{"localhost:9000", false, "http://localhost:9000"},
		{"minio.internal:9000", true, "https://minio.internal:9000"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.expect {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.expect)
		}
	}
}

type statusErr int

func (e statusErr) Error() string       { return "http status" }
func (e statusErr) HTTPStatusCode() int { return int(e) }

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"no such key", &types.NoSuchKey{}, true},
		{"wrapped not found", fmt.Errorf("get: %w", &types.NotFound{}), true},
		{"bare 404", statusErr(404), true},
		{"403", statusErr(403), false},
		{"other", errors.New("timeout"), false},
	}
	for _, tt := range tests {
		if got := isNotFound(tt.err); got != tt.want {
			t.Errorf("%s: isNotFound = %v, want %v", tt.name, got, tt.want)
		}
	}
}
