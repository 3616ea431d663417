package amqp

import "context"

// Publisher is the write side used by the transaction service.
type Publisher interface {
	PublishTransactionEvent(ctx context.Context, e TransactionEvent) error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) PublishTransactionEvent(context.Context, TransactionEvent) error { return nil }

var _ Publisher = (*Client)(nil)
