package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

// fillMessage is the JSON shape of a fill on the pub/sub channel.
type fillMessage struct {
	RunID     string  `json:"run_id"`
	Seq       uint64  `json:"seq"`
	OrderID   string  `json:"order_id"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	Position  float64 `json:"position"`
	LatencyNS int64   `json:"latency_ns"`
	Time      string  `json:"time,omitempty"`
}

func encodeFill(f domain.Fill) ([]byte, error) {
	m := fillMessage{
		RunID:     f.RunID,
		Seq:       f.Seq,
		OrderID:   f.OrderID,
		Side:      string(f.Side),
		Price:     f.Price,
		Quantity:  f.Quantity,
		Position:  f.Position,
		LatencyNS: f.Latency.Nanoseconds(),
	}
	if !f.Time.IsZero() {
		m.Time = f.Time.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(m)
}

func decodeFill(data []byte) (domain.Fill, error) {
	var m fillMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return domain.Fill{}, err
	}
	f := domain.Fill{
		RunID:    m.RunID,
		Seq:      m.Seq,
		OrderID:  m.OrderID,
		Side:     domain.Side(m.Side),
		Price:    m.Price,
		Quantity: m.Quantity,
		Position: m.Position,
		Latency:  time.Duration(m.LatencyNS),
	}
	if m.Time != "" {
		t, err := time.Parse(time.RFC3339Nano, m.Time)
		if err != nil {
			return domain.Fill{}, err
		}
		f.Time = t
	}
	return f, nil
}

// FillBus implements domain.FillBus over Redis Pub/Sub. Delivery is
// best-effort: subscribers that are not connected miss the message.
type FillBus struct {
	rdb     *redis.Client
	channel string
}

// NewFillBus creates a FillBus publishing to channel. An empty channel
// defaults to "<prefix>:fills".
func NewFillBus(c *Client, channel string) *FillBus {
	if channel == "" {
		channel = c.key("fills")
	}
	return &FillBus{rdb: c.Underlying(), channel: channel}
}

// Channel returns the pub/sub channel name.
func (b *FillBus) Channel() string { return b.channel }

// PublishFill sends one fill as JSON.
func (b *FillBus) PublishFill(ctx context.Context, f domain.Fill) error {
	payload, err := encodeFill(f)
	if err != nil {
		return fmt.Errorf("redis: encode fill: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", b.channel, err)
	}
	return nil
}

// SubscribeFills returns a channel of decoded fills. Undecodable messages are
// dropped. The returned channel is closed when ctx is cancelled.
func (b *FillBus) SubscribeFills(ctx context.Context) (<-chan domain.Fill, error) {
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", b.channel, err)
	}

	out := make(chan domain.Fill, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				f, err := decodeFill([]byte(msg.Payload))
				if err != nil {
					continue
				}
				select {
				case out <- f:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
