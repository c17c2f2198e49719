package domain

import "errors"

var (
	ErrNotFound            = errors.New("not found")
	ErrMalformedRecord     = errors.New("malformed record")
	ErrUnparseableNumber   = errors.New("unparseable number")
	ErrSnapshotUnavailable = errors.New("snapshot unavailable")
	ErrTransport           = errors.New("transport failure")
	ErrResourceExhausted   = errors.New("resource exhausted")
	ErrRateLimited         = errors.New("rate limited")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrInvalidOrder        = errors.New("invalid order parameters")
	ErrWSDisconnect        = errors.New("websocket disconnected")
)
