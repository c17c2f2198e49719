package feed

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

func TestDecodeUpdate(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		wantBids []domain.PriceLevel
		wantAsks []domain.PriceLevel
	}{
		{
			name:     "venue diff event",
			raw:      `{"e":"depthUpdate","E":1,"s":"BTCUSD","U":1,"u":2,"b":[["100.50","1.25"],["100.00","0"]],"a":[["101.00","2"]]}`,
			wantBids: []domain.PriceLevel{{Price: 100.5, Quantity: 1.25}, {Price: 100, Quantity: 0}},
			wantAsks: []domain.PriceLevel{{Price: 101, Quantity: 2}},
		},
		{
			name:     "empty sides",
			raw:      `{"b":[],"a":[]}`,
			wantBids: []domain.PriceLevel{},
			wantAsks: []domain.PriceLevel{},
		},
		{name: "not json", raw: `garbage`, wantErr: true},
		{name: "missing asks", raw: `{"b":[["1","1"]]}`, wantErr: true},
		{name: "null bids", raw: `{"b":null,"a":[]}`, wantErr: true},
		{name: "unparseable price", raw: `{"b":[["abc","1"]],"a":[]}`, wantErr: true},
		{name: "negative quantity", raw: `{"b":[],"a":[["100","-1"]]}`, wantErr: true},
		{name: "zero price", raw: `{"b":[["0","1"]],"a":[]}`, wantErr: true},
		{name: "infinite quantity", raw: `{"b":[["100","Inf"]],"a":[]}`, wantErr: true},
		{name: "nan price", raw: `{"b":[["NaN","1"]],"a":[]}`, wantErr: true},
		{name: "short level", raw: `{"b":[["100"]],"a":[]}`, wantErr: true},
		{name: "numeric instead of string", raw: `{"b":[[100,1]],"a":[]}`, wantErr: true},
		{name: "bad level after good ones", raw: `{"b":[["100","1"]],"a":[["101","1"],["x","1"]]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := DecodeUpdate([]byte(tt.raw))
			if tt.wantErr {
				if d.OK() {
					t.Fatalf("expected error, got update %+v", d.Update)
				}
				if !errors.Is(d.Err, domain.ErrMalformedRecord) {
					t.Errorf("err = %v, want ErrMalformedRecord", d.Err)
				}
				if d.Update.Len() != 0 {
					t.Errorf("rejected record carried %d levels", d.Update.Len())
				}
				return
			}
			if !d.OK() {
				t.Fatalf("unexpected error: %v", d.Err)
			}
			assertLevels(t, "bids", d.Update.Bids, tt.wantBids)
			assertLevels(t, "asks", d.Update.Asks, tt.wantAsks)
		})
	}
}

func TestUnparseableNumberIsClassified(t *testing.T) {
	d := DecodeUpdate([]byte(`{"b":[["1e","1"]],"a":[]}`))
	if !errors.Is(d.Err, domain.ErrUnparseableNumber) {
		t.Fatalf("err = %v, want ErrUnparseableNumber", d.Err)
	}
}

func TestDecoderReusesBuffers(t *testing.T) {
	dec := NewDecoder(0)
	first := dec.Decode([]byte(`{"b":[["1","1"],["2","2"]],"a":[]}`))
	if !first.OK() {
		t.Fatal(first.Err)
	}
	second := dec.Decode([]byte(`{"b":[["3","3"]],"a":[["4","4"]]}`))
	if !second.OK() {
		t.Fatal(second.Err)
	}
	if len(second.Update.Bids) != 1 || second.Update.Bids[0].Price != 3 {
		t.Fatalf("bids = %+v", second.Update.Bids)
	}
	if &first.Update.Bids[0] != &second.Update.Bids[0] {
		t.Error("decoder should reuse its bid buffer")
	}
}

func TestDecoderSizedForBookKeepsBuffers(t *testing.T) {
	dec := NewDecoder(4)
	raw := []byte(`{"b":[["1","1"],["2","2"],["3","3"]],"a":[["4","4"]]}`)
	first := dec.Decode(raw)
	if !first.OK() {
		t.Fatal(first.Err)
	}
	if cap(first.Update.Bids) != 4 {
		t.Fatalf("bid buffer cap = %d, want 4", cap(first.Update.Bids))
	}

	// An oversized update grows the buffer once; the grown buffer is kept.
	big := []byte(`{"b":[["1","1"],["2","2"],["3","3"],["4","4"],["5","5"]],"a":[]}`)
	grown := dec.Decode(big)
	if !grown.OK() {
		t.Fatal(grown.Err)
	}
	again := dec.Decode(raw)
	if &again.Update.Bids[0] != &grown.Update.Bids[0] {
		t.Error("decoder dropped its grown bid buffer")
	}
}

func TestDecodeSnapshot(t *testing.T) {
	snap, err := DecodeSnapshot([]byte(`{"lastUpdateId":12,"bids":[["99","1"]],"asks":[["100","2"],["101","0.5"]]}`))
	if err != nil {
		t.Fatal(err)
	}
	if snap.LastUpdateID != 12 || len(snap.Bids) != 1 || len(snap.Asks) != 2 {
		t.Fatalf("snapshot = %+v", snap)
	}
	if _, err := DecodeSnapshot([]byte(`{"bids":[]}`)); !errors.Is(err, domain.ErrMalformedRecord) {
		t.Fatalf("err = %v", err)
	}
}

func TestReplayDriverSkipsBlankLines(t *testing.T) {
	log := "a\n\n   \nb\n\nc"
	d := NewReplayDriver(strings.NewReader(log))

	var got []string
	for {
		rec, err := d.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(rec))
	}
	if strings.Join(got, ",") != "a,b,c" {
		t.Fatalf("records = %v", got)
	}
	if d.Line() != 6 {
		t.Errorf("lines = %d, want 6", d.Line())
	}
}

func TestReplayDriverHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := NewReplayDriver(strings.NewReader("a\nb\n"))
	if _, err := d.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

type sliceDriver struct {
	recs []string
}

func (s *sliceDriver) Next(context.Context) ([]byte, error) {
	if len(s.recs) == 0 {
		return nil, io.EOF
	}
	r := s.recs[0]
	s.recs = s.recs[1:]
	return []byte(r), nil
}

func TestRecorderReusesLineBuffer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	rec, err := OpenRecorder(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if err := rec.Record([]byte(`{"b":[["1","1"]],"a":[]}`)); err != nil {
		t.Fatal(err)
	}
	first := &rec.buf[0]
	if err := rec.Record([]byte(`{"b":[],"a":[["2","1"]]}`)); err != nil {
		t.Fatal(err)
	}
	if &rec.buf[0] != first {
		t.Error("recorder allocated a new line buffer")
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if want := "{\"b\":[[\"1\",\"1\"]],\"a\":[]}\n{\"b\":[],\"a\":[[\"2\",\"1\"]]}\n"; string(got) != want {
		t.Errorf("log = %q, want %q", got, want)
	}
}

func TestRecordingDriverRoundTripsThroughReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "market_data.log")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Pre-existing content must survive: the recorder only appends.
	if err := os.WriteFile(path, []byte(`{"b":[],"a":[]}`+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rec, err := OpenRecorder(path, logger)
	if err != nil {
		t.Fatal(err)
	}
	live := []string{`{"b":[["1","1"]],"a":[]}`, `not json`, `{"b":[],"a":[["2","1"]]}`}
	d := NewRecordingDriver(&sliceDriver{recs: append([]string(nil), live...)}, rec, logger)
	for {
		if _, err := d.Next(context.Background()); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			t.Fatal(err)
		}
	}
	if err := rec.Close(); err != nil {
		t.Fatal(err)
	}

	src, err := OpenReplaySource(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()
	replay := NewReplayDriver(src)

	want := append([]string{`{"b":[],"a":[]}`}, live...)
	for i, w := range want {
		got, err := replay.Next(context.Background())
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if string(got) != w {
			t.Errorf("record %d = %q, want %q", i, got, w)
		}
	}
	if _, err := replay.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

type memBlobs struct {
	objects map[string]string
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	s, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(strings.NewReader(s)), nil
}

func (m *memBlobs) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var out []domain.BlobInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, domain.BlobInfo{Path: k, Size: int64(len(v))})
		}
	}
	return out, nil
}

func TestOpenReplaySourceFromObjectStore(t *testing.T) {
	blobs := &memBlobs{objects: map[string]string{"logs/day1.log": "x\n"}}

	rc, err := OpenReplaySource(context.Background(), "s3://logs/day1.log", blobs)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != "x\n" {
		t.Errorf("body = %q", b)
	}

	if _, err := OpenReplaySource(context.Background(), "s3://missing", blobs); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, err := OpenReplaySource(context.Background(), "s3://x", nil); err == nil {
		t.Error("expected error without object store")
	}
}

func TestOpenReplaySourcePrefixConcatenatesSegments(t *testing.T) {
	blobs := &memBlobs{objects: map[string]string{
		"md/run1/000002.log": "r3\n",
		"md/run1/000001.log": "r1\nr2\n",
		"md/run2/000001.log": "other\n",
		"md/run1/000003.log": "",
	}}

	rc, err := OpenReplaySource(context.Background(), "s3://md/run1/", blobs)
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()

	d := NewReplayDriver(rc)
	var got []string
	for {
		rec, err := d.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, string(rec))
	}
	if strings.Join(got, ",") != "r1,r2,r3" {
		t.Errorf("records = %v", got)
	}

	if _, err := OpenReplaySource(context.Background(), "s3://nothing/", blobs); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("empty prefix err = %v, want ErrNotFound", err)
	}
}

func assertLevels(t *testing.T, side string, got, want []domain.PriceLevel) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: got %d levels, want %d", side, len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("%s[%d] = %+v, want %+v", side, i, got[i], want[i])
		}
	}
}
