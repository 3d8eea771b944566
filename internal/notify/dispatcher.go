package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"blogauth/internal/logging"
)

const defaultSendTimeout = 15 * time.Second

// Dispatcher sends messages in the background. Failures are logged and
// dropped; there is no retry.
type Dispatcher struct {
	sender  Notifier
	logger  logging.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(sender Notifier, logger logging.Logger, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Dispatcher{sender: sender, logger: logger, timeout: timeout}
}

// Dispatch returns immediately. The send outlives ctx cancellation but keeps
// its values.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		if err := d.send(sendCtx, msg); err != nil {
			d.logger.Warn(sendCtx, "notification failed", "kind", msg.Kind, "to", msg.To, "err", err)
			return
		}
		d.logger.Debug(sendCtx, "notification sent", "kind", msg.Kind, "to", msg.To)
	}()
}

func (d *Dispatcher) send(ctx context.Context, msg Message) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("notifier panic: %v", p)
		}
	}()
	return d.sender.Send(ctx, msg)
}

// Wait blocks until every dispatched message has been attempted.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
