// Package mailer renders the approval email and hands it to an outbound mail transport.
package mailer

import (
	"context"
	"errors"
)

var ErrEmptyRecipient = errors.New("recipient is required")

// Message is one rendered outbound email
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Transport delivers a prepared message; a single attempt, no retry
type Transport interface {
	Send(ctx context.Context, msg Message) error
}
