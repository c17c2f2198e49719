package feed

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

const (
	// handshakeTimeout bounds the websocket upgrade.
	handshakeTimeout = 15 * time.Second

	// defaultReadTimeout is how long the stream may stay silent before the
	// connection is considered dead. The venue publishes depth every second.
	defaultReadTimeout = 60 * time.Second

	userAgent = "depthbot/1.0"
)

// WSDriver reads raw depth updates from a websocket stream. A read failure
// is fatal to the run and is returned wrapped with domain.ErrTransport; the
// driver does not reconnect, since a gap in the diff stream would leave the
// book silently wrong.
type WSDriver struct {
	url         string
	readTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	stopClose func() bool
}

// NewWSDriver creates a driver for url. readTimeout <= 0 selects the default.
func NewWSDriver(url string, readTimeout time.Duration, logger *slog.Logger) *WSDriver {
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}
	return &WSDriver{
		url:         url,
		readTimeout: readTimeout,
		logger:      logger.With(slog.String("component", "ws_driver")),
	}
}

// Connect dials the stream. The connection is closed when ctx is done, which
// unblocks a pending Next.
func (d *WSDriver) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: handshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	header := http.Header{}
	header.Set("User-Agent", userAgent)

	conn, _, err := dialer.DialContext(ctx, d.url, header)
	if err != nil {
		return fmt.Errorf("feed/ws: connect %s: %w: %w", d.url, domain.ErrTransport, err)
	}
	d.conn = conn
	d.stopClose = context.AfterFunc(ctx, func() { _ = conn.Close() })

	d.logger.Info("depth stream connected", slog.String("url", d.url))
	return nil
}

// Next blocks until the next message arrives.
func (d *WSDriver) Next(ctx context.Context) ([]byte, error) {
	conn := d.conn
	if conn == nil {
		return nil, fmt.Errorf("feed/ws: %w: not connected", domain.ErrWSDisconnect)
	}
	if err := conn.SetReadDeadline(time.Now().Add(d.readTimeout)); err != nil {
		return nil, fmt.Errorf("feed/ws: set deadline: %w: %w", domain.ErrTransport, err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("feed/ws: read: %w: %w", domain.ErrTransport, err)
	}
	return msg, nil
}

// Close sends a close frame and closes the connection.
func (d *WSDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return nil
	}
	if d.stopClose != nil {
		d.stopClose()
	}
	_ = d.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	err := d.conn.Close()
	d.conn = nil
	return err
}

var _ Driver = (*WSDriver)(nil)
