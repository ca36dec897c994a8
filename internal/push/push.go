// Package push delivers notifications to device tokens.
package push

import (
	"context"

	"go.uber.org/zap"
)

// Message is one notification addressed to many device tokens.
type Message struct {
	Tokens []string
	Title  string
	Body   string
	Data   map[string]string
}

// SendResult is the outcome for a single token.
type SendResult struct {
	Token     string
	MessageID string
	Err       error
}

// BatchResponse aggregates a multicast send.
type BatchResponse struct {
	SuccessCount int
	FailureCount int
	Responses    []SendResult
}

func (b *BatchResponse) add(r SendResult) {
	b.Responses = append(b.Responses, r)
	if r.Err != nil {
		b.FailureCount++
	} else {
		b.SuccessCount++
	}
}

// Transport sends a message to each of its tokens. A returned error means the
// dispatch as a whole could not be attempted; individual token failures are
// reported in the BatchResponse.
type Transport interface {
	SendMulticast(ctx context.Context, msg *Message) (*BatchResponse, error)
}

// LogTransport writes messages to the log and reports every token as delivered.
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport creates a transport for local development
func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) SendMulticast(ctx context.Context, msg *Message) (*BatchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.logger.Info("Push notification (log transport)",
		zap.Int("tokens", len(msg.Tokens)),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
		zap.Any("data", msg.Data),
	)

	resp := &BatchResponse{Responses: make([]SendResult, 0, len(msg.Tokens))}
	for _, tok := range msg.Tokens {
		resp.add(SendResult{Token: tok, MessageID: "log"})
	}
	return resp, nil
}
