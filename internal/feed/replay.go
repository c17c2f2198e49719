package feed

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// maxRecordSize bounds a single replay line. Full-depth updates from busy
// sessions run to a few hundred kilobytes.
const maxRecordSize = 4 << 20

// ReplayDriver yields one record per non-blank line of a recorded log. It
// never blocks on anything but the underlying reader and returns io.EOF at
// the end of the log.
type ReplayDriver struct {
	scanner *bufio.Scanner
	line    int64
}

// NewReplayDriver reads records from r.
func NewReplayDriver(r io.Reader) *ReplayDriver {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	return &ReplayDriver{scanner: s}
}

// Next returns the next non-blank line. Blank lines are skipped and not
// reported to the caller.
func (d *ReplayDriver) Next(ctx context.Context) ([]byte, error) {
	for d.scanner.Scan() {
		d.line++
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := d.scanner.Bytes()
		if len(bytes.TrimSpace(b)) == 0 {
			continue
		}
		return b, nil
	}
	if err := d.scanner.Err(); err != nil {
		return nil, fmt.Errorf("feed/replay: line %d: %w", d.line+1, err)
	}
	return nil, io.EOF
}

// Line returns the number of lines consumed so far, blank lines included.
func (d *ReplayDriver) Line() int64 { return d.line }

// OpenReplaySource opens a replay log. Locations of the form s3://key are
// fetched through blobs, which may be nil when no object store is
// configured. A location ending in "/" names a prefix: every object under it
// is replayed in key order as one stream. Anything else is a local file path.
func OpenReplaySource(ctx context.Context, location string, blobs domain.BlobReader) (io.ReadCloser, error) {
	key, ok := strings.CutPrefix(location, "s3://")
	if !ok {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("feed/replay: open %s: %w", location, err)
		}
		return f, nil
	}
	if blobs == nil {
		return nil, fmt.Errorf("feed/replay: %s: object store not configured", location)
	}

	if !strings.HasSuffix(key, "/") {
		rc, err := blobs.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("feed/replay: fetch %s: %w", location, err)
		}
		return rc, nil
	}

	infos, err := blobs.List(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("feed/replay: list %s: %w", location, err)
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("feed/replay: list %s: %w", location, domain.ErrNotFound)
	}
	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Path
	}
	sort.Strings(keys)
	return &segmentReader{ctx: ctx, blobs: blobs, keys: keys}, nil
}

// segmentReader concatenates objects, opening each one only when the
// previous one is exhausted.
type segmentReader struct {
	ctx   context.Context
	blobs domain.BlobReader
	keys  []string
	cur   io.ReadCloser
}

func (r *segmentReader) Read(p []byte) (int, error) {
	for {
		if r.cur == nil {
			if len(r.keys) == 0 {
				return 0, io.EOF
			}
			rc, err := r.blobs.Get(r.ctx, r.keys[0])
			if err != nil {
				return 0, fmt.Errorf("feed/replay: fetch segment %s: %w", r.keys[0], err)
			}
			r.cur = rc
			r.keys = r.keys[1:]
		}
		n, err := r.cur.Read(p)
		if errors.Is(err, io.EOF) {
			_ = r.cur.Close()
			r.cur = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (r *segmentReader) Close() error {
	if r.cur == nil {
		return nil
	}
	err := r.cur.Close()
	r.cur = nil
	return err
}

var _ Driver = (*ReplayDriver)(nil)
