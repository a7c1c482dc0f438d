package lettuce

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/curtisnewbie/lettuce/flow"
)

var (
	// Signals that stop Consume when Config.ShutdownSignals is nil.
	DefaultShutdownSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}
)

// Derive a Rail that is also cancelled by the shutdown signals.
func (l *Lettuce) handleShutdown(rail flow.Rail) (flow.Rail, context.CancelFunc) {
	sigs := l.conf.ShutdownSignals
	if sigs == nil {
		sigs = DefaultShutdownSignals
	}
	if len(sigs) < 1 {
		return rail.WithCancel()
	}
	ctx, stop := signal.NotifyContext(rail.Context(), sigs...)
	return flow.NewRail(ctx), stop
}

// Stop consuming and close the connection.
//
// Messages buffered on the client side are not processed, the broker redelivers them since they are not acknowledged.
func (l *Lettuce) shutdown(rail flow.Rail) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil // closed already, e.g., by Close
	}

	if l.consumerTag != "" && !l.conn.IsClosed() {
		if err := l.ch.Cancel(l.consumerTag, false); err != nil {
			rail.Warnf("Failed to cancel consumer '%v', %v", l.consumerTag, err)
		}
	}
	return l.closeConnectionLocked(rail)
}
