package binance

import (
	"strconv"
	"strings"

	"github.com/alanyoungcy/depthbot/internal/domain"
)

const (
	DefaultRESTURL = "https://api.binance.us"
	DefaultWSURL   = "wss://stream.binance.us:9443"
	DefaultSymbol  = "BTCUSD"

	// DefaultSnapshotLimit is the number of levels requested per side.
	DefaultSnapshotLimit = 1000
)

// DepthStreamURL returns the diff-depth stream URL for symbol on wsBase.
func DepthStreamURL(wsBase, symbol string) string {
	return wsBase + "/ws/" + strings.ToLower(symbol) + "@depth"
}

// APIOrderResponse is the subset of the new-order response the bot reads.
type APIOrderResponse struct {
	Symbol        string `json:"symbol"`
	OrderID       int64  `json:"orderId"`
	ClientOrderID string `json:"clientOrderId"`
	Status        string `json:"status"`
}

// ToDomainAck converts the response to a domain acknowledgment.
func (r APIOrderResponse) ToDomainAck() domain.OrderAck {
	return domain.OrderAck{
		OrderID:       strconv.FormatInt(r.OrderID, 10),
		ClientOrderID: r.ClientOrderID,
		Status:        r.Status,
	}
}

// APIError is the venue error body.
type APIError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
