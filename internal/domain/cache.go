package domain

import "context"

// TopOfBookCache stores the latest top-of-book for external readers.
type TopOfBookCache interface {
	SetTopOfBook(ctx context.Context, tob TopOfBook) error
	GetTopOfBook(ctx context.Context, symbol string) (TopOfBook, error)
}

// FillBus fans realized fills out to other processes.
type FillBus interface {
	PublishFill(ctx context.Context, fill Fill) error
}
