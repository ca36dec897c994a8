// Package notify implements the multicast dispatch contract shared by the
// missed-dose alerts and the on-demand send endpoint.
package notify

import (
	"context"
	"fmt"

	"github.com/gmsas95/medwatch/internal/push"
	"go.uber.org/zap"
)

// Dispatch sources, used as a metrics label.
const (
	SourceDetector = "detector"
	SourceOnDemand = "on_demand"
)

// Counts is the per-token outcome of one dispatch.
type Counts struct {
	Sent   int
	Failed int
}

// Observer receives every dispatch outcome.
type Observer interface {
	ObserveDispatch(source string, c Counts, err error)
}

// Dispatcher sends one multicast and counts the result.
type Dispatcher struct {
	transport push.Transport
	observer  Observer
	logger    *zap.Logger
}

// NewDispatcher creates a dispatcher. observer may be nil.
func NewDispatcher(transport push.Transport, observer Observer, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		observer:  observer,
		logger:    logger,
	}
}

// Dispatch sends msg to its tokens. With no tokens it returns zero counts
// without touching the transport. There are no retries.
func (d *Dispatcher) Dispatch(ctx context.Context, source string, msg *push.Message) (Counts, error) {
	if len(msg.Tokens) == 0 {
		return Counts{}, nil
	}

	resp, err := d.transport.SendMulticast(ctx, msg)
	if err != nil {
		err = fmt.Errorf("multicast dispatch: %w", err)
		d.observe(source, Counts{}, err)
		return Counts{}, err
	}

	c := Counts{Sent: resp.SuccessCount, Failed: resp.FailureCount}
	d.observe(source, c, nil)

	d.logger.Info("Multicast dispatched",
		zap.String("source", source),
		zap.Int("sent", c.Sent),
		zap.Int("failed", c.Failed),
	)
	return c, nil
}

func (d *Dispatcher) observe(source string, c Counts, err error) {
	if d.observer != nil {
		d.observer.ObserveDispatch(source, c, err)
	}
}
