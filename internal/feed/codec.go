// Package feed turns raw market-data records into depth updates. It holds
// the wire codec and the drivers that deliver records to the pipeline, from
// a live websocket stream or from a recorded replay log.
package feed

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// Decoded is the result of decoding one record. Err is non-nil (and wraps
// domain.ErrMalformedRecord) when the record must be skipped; Update is then
// empty.
type Decoded struct {
	Update domain.DepthUpdate
	Err    error
}

// OK reports whether the record decoded cleanly.
func (d Decoded) OK() bool { return d.Err == nil }

// wireUpdate is the incremental depth update. Venue fields other than the
// level arrays are ignored.
type wireUpdate struct {
	Bids [][2]string `json:"b"`
	Asks [][2]string `json:"a"`
}

type wireSnapshot struct {
	LastUpdateID int64       `json:"lastUpdateId"`
	Bids         [][2]string `json:"bids"`
	Asks         [][2]string `json:"asks"`
}

// Decoder decodes depth updates, reusing its level buffers between calls.
// The Update returned by Decode aliases those buffers and is only valid until
// the next call. A Decoder is not safe for concurrent use.
type Decoder struct {
	bids []domain.PriceLevel
	asks []domain.PriceLevel
}

// defaultDecoderLevels sizes a Decoder when no book capacity is known.
const defaultDecoderLevels = 64

// NewDecoder creates a Decoder whose buffers hold levels entries per side
// without growing. A larger update grows them once and the larger buffers
// are kept for later calls.
func NewDecoder(levels int) *Decoder {
	if levels <= 0 {
		levels = defaultDecoderLevels
	}
	return &Decoder{
		bids: make([]domain.PriceLevel, 0, levels),
		asks: make([]domain.PriceLevel, 0, levels),
	}
}

// Decode parses one raw update. Both the "b" and "a" arrays must be present.
// If any level fails to parse, or carries a negative or non-finite number,
// the whole record is rejected.
func (d *Decoder) Decode(raw []byte) Decoded {
	var w wireUpdate
	if err := json.Unmarshal(raw, &w); err != nil {
		return Decoded{Err: fmt.Errorf("feed: decode update: %w: %w", domain.ErrMalformedRecord, err)}
	}
	if w.Bids == nil || w.Asks == nil {
		return Decoded{Err: fmt.Errorf("feed: decode update: %w: missing b or a", domain.ErrMalformedRecord)}
	}

	var err error
	if d.bids, err = parseLevels(d.bids[:0], w.Bids); err != nil {
		return Decoded{Err: fmt.Errorf("feed: decode update bids: %w", err)}
	}
	if d.asks, err = parseLevels(d.asks[:0], w.Asks); err != nil {
		return Decoded{Err: fmt.Errorf("feed: decode update asks: %w", err)}
	}
	return Decoded{Update: domain.DepthUpdate{Bids: d.bids, Asks: d.asks}}
}

// DecodeUpdate parses one raw update into freshly allocated slices.
func DecodeUpdate(raw []byte) Decoded {
	return (&Decoder{}).Decode(raw)
}

// DecodeSnapshot parses a REST depth snapshot.
func DecodeSnapshot(raw []byte) (domain.DepthSnapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("feed: decode snapshot: %w: %w", domain.ErrMalformedRecord, err)
	}
	if w.Bids == nil || w.Asks == nil {
		return domain.DepthSnapshot{}, fmt.Errorf("feed: decode snapshot: %w: missing bids or asks", domain.ErrMalformedRecord)
	}
	bids, err := parseLevels(make([]domain.PriceLevel, 0, len(w.Bids)), w.Bids)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("feed: decode snapshot bids: %w", err)
	}
	asks, err := parseLevels(make([]domain.PriceLevel, 0, len(w.Asks)), w.Asks)
	if err != nil {
		return domain.DepthSnapshot{}, fmt.Errorf("feed: decode snapshot asks: %w", err)
	}
	return domain.DepthSnapshot{LastUpdateID: w.LastUpdateID, Bids: bids, Asks: asks}, nil
}

func parseLevels(dst []domain.PriceLevel, src [][2]string) ([]domain.PriceLevel, error) {
	for i, l := range src {
		p, err := parseNumber(l[0])
		if err != nil {
			return dst, fmt.Errorf("level %d price: %w", i, err)
		}
		q, err := parseNumber(l[1])
		if err != nil {
			return dst, fmt.Errorf("level %d quantity: %w", i, err)
		}
		if p <= 0 {
			return dst, fmt.Errorf("level %d: %w: non-positive price %q", i, domain.ErrMalformedRecord, l[0])
		}
		dst = append(dst, domain.PriceLevel{Price: p, Quantity: q})
	}
	return dst, nil
}

func parseNumber(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, fmt.Errorf("%w: %w: %q", domain.ErrMalformedRecord, domain.ErrUnparseableNumber, s)
	}
	return v, nil
}
