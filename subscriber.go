package lettuce

import (
	"runtime/debug"
	"time"

	"github.com/curtisnewbie/lettuce/flow"
	"github.com/curtisnewbie/lettuce/util/errs"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	resultAcked     = "acked"
	resultFailed    = "failed"
	resultMalformed = "malformed"
	resultUnhandled = "unhandled"
	resultRequeued  = "requeued"
)

/*
Register handler for events with the given name.

The worker queue is declared (if not yet declared) and bound to the exchange using the name as the routing key.
Each event name has its own handler, registering the same name again replaces the previous handler.
Names with a '*' or '#' segment are rejected with ErrConfiguration.

Messages are not consumed until Consume is called.
*/
func (l *Lettuce) AddListener(rail flow.Rail, name string, handler Handler) error {
	if handler == nil {
		return errs.ErrConfiguration.WithInternalMsg("handler for '%v' is nil", name)
	}
	if err := validateEventName(name); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateConsuming || l.state == StateStopped {
		return errs.ErrConfiguration.WithInternalMsg("unable to add listener for '%v', instance is %v", name, l.state)
	}

	if !l.queueDeclared {
		if err := l.declareQueue(rail); err != nil {
			return err
		}
		l.queueDeclared = true
	}
	if err := l.bindQueue(rail, name); err != nil {
		return err
	}

	if _, ok := l.handlers[name]; ok {
		rail.Warnf("Handler for '%v' is replaced", name)
	}
	l.handlers[name] = handler
	l.state = StateBound
	rail.Infof("Listening to '%v' on queue '%v'", name, l.conf.WorkerName)
	return nil
}

// AddListener and then Consume, it blocks until the instance is stopped.
func (l *Lettuce) Listen(rail flow.Rail, name string, handler Handler) error {
	if err := l.AddListener(rail, name, handler); err != nil {
		return err
	}
	return l.Consume(rail)
}

/*
Consume messages from the worker queue and dispatch them to the registered handlers, one message at a time.

Consume blocks until the rail is cancelled, SIGINT or SIGTERM is received, or the instance is closed, and then
it returns nil. The connection is always closed when Consume returns.

A message is acknowledged only when the handler returns nil. If the handler fails, the message is left
unacknowledged (or requeued, depending on the FailureMode). Malformed messages are rejected without requeue,
they are dead-lettered if the queue has a dead-letter exchange. A message that no handler is registered for
is requeued once for the other consumers of the worker queue, and rejected when it's delivered again.

If the broker closes the delivery stream, ErrConnection is returned.
*/
func (l *Lettuce) Consume(rail flow.Rail) error {
	rail, stop := l.handleShutdown(rail)
	defer stop()

	deliveries, err := l.startConsumer(rail)
	if err != nil {
		return err
	}

	rail.Infof("Waiting for events on queue '%v'", l.conf.WorkerName)

	for {
		select {
		case <-rail.Done():
			return l.shutdown(rail)
		case d, ok := <-deliveries:
			if !ok {
				if rail.IsDone() || l.State() == StateStopped {
					return l.shutdown(rail)
				}
				if err := l.shutdown(rail); err != nil {
					rail.Warnf("Failed to close connection, %v", err)
				}
				return errs.ErrConnection.WithInternalMsg("delivery channel of queue '%v' closed by broker", l.conf.WorkerName)
			}

			// the delivery is not processed and will be redelivered once the channel is closed
			if rail.IsDone() {
				return l.shutdown(rail)
			}
			l.handleDelivery(rail, d)
		}
	}
}

func (l *Lettuce) startConsumer(rail flow.Rail) (<-chan amqp.Delivery, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != StateBound {
		return nil, errs.ErrConfiguration.WithInternalMsg("unable to consume, instance is %v, at least one listener should be registered", l.state)
	}

	if err := l.ch.Qos(l.conf.Qos, 0, false); err != nil {
		return nil, errs.ErrConnection.Wrapf(err, "failed to set qos %v", l.conf.Qos)
	}

	tag := "lettuce-" + l.conf.WorkerName + "-" + flow.NewSpanId()
	deliveries, err := l.ch.Consume(l.conf.WorkerName, tag, false, false, false, false, nil)
	if err != nil {
		return nil, errs.ErrConnection.Wrapf(err, "failed to listen to '%s'", l.conf.WorkerName)
	}

	l.consumerTag = tag
	l.state = StateConsuming
	rail.Infof("Bootstrapped consumer '%v' for queue '%v' with qos: %v", tag, l.conf.WorkerName, l.conf.Qos)
	return deliveries, nil
}

func (l *Lettuce) handleDelivery(rail flow.Rail, d amqp.Delivery) {
	start := time.Now()

	evt, err := ParseEvent(d.Body)
	if err != nil {
		rail.Errorf("Failed to parse message, queue: '%v', routingKey: '%v', messageId: '%v', payload: '%s', %v",
			l.conf.WorkerName, d.RoutingKey, d.MessageId, d.Body, err)
		l.reject(rail, d)
		consumedCounter.WithLabelValues(d.RoutingKey, resultMalformed).Inc()
		return
	}
	rail.Infof("Event received '%v': %s", d.RoutingKey, d.Body)

	h, ok := l.lookupHandler(d.RoutingKey, evt.Name)
	if !ok {
		// other instances of the worker may have registered the handler
		if !d.Redelivered {
			rail.Warnf("No handler registered for '%v' on queue '%v', message '%v' is requeued", d.RoutingKey, l.conf.WorkerName, evt.Id)
			if err := d.Nack(false, true); err != nil {
				rail.Errorf("Failed to requeue message '%v', %v", evt.Id, err)
			}
			consumedCounter.WithLabelValues(d.RoutingKey, resultRequeued).Inc()
			return
		}
		rail.Errorf("No handler registered for '%v' on queue '%v', redelivered message '%v' is rejected, payload: '%s'",
			d.RoutingKey, l.conf.WorkerName, evt.Id, d.Body)
		l.reject(rail, d)
		consumedCounter.WithLabelValues(d.RoutingKey, resultUnhandled).Inc()
		return
	}

	// handlers run with a new context, they are not interrupted by shutdown
	hr := flow.LoadPropagationKeysFromHeaders(flow.EmptyRail(), map[string]any(d.Headers)).
		NextSpan().
		WithCtxVal(flow.XEventId, evt.Id)

	err = invokeHandler(hr, h, evt)
	handleDuration.WithLabelValues(evt.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		rail.Errorf("Failed to handle event '%v', id: '%v', queue: '%v', %v", evt.Name, evt.Id, l.conf.WorkerName, err)
		consumedCounter.WithLabelValues(evt.Name, resultFailed).Inc()

		if l.conf.FailureMode == FailureModeRequeue {
			if err := d.Nack(false, true); err != nil {
				rail.Errorf("Failed to nack message '%v', %v", evt.Id, err)
			}
			rail.Debugf("Nacked message: %v", evt.Id)
			return
		}
		rail.Debugf("Message '%v' is left unacknowledged", evt.Id)
		return
	}

	if err := d.Ack(false); err != nil {
		rail.Errorf("Failed to ack message '%v', %v", evt.Id, err)
		return
	}
	consumedCounter.WithLabelValues(evt.Name, resultAcked).Inc()
}

func (l *Lettuce) lookupHandler(routingKey string, name string) (Handler, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h, ok := l.handlers[routingKey]; ok {
		return h, true
	}
	h, ok := l.handlers[name]
	return h, ok
}

// Reject message without requeue, it's dead-lettered if the queue has a dead-letter exchange.
func (l *Lettuce) reject(rail flow.Rail, d amqp.Delivery) {
	if err := d.Nack(false, false); err != nil {
		rail.Errorf("Failed to reject message '%v', %v", d.MessageId, err)
	}
}

// Invoke handler, panics are recovered and returned as ErrHandler.
func invokeHandler(rail flow.Rail, h Handler, evt Event) (err error) {
	defer func() {
		if v := recover(); v != nil {
			rail.Errorf("panic recovered, %v\n%s", v, debug.Stack())
			err = errs.ErrHandler.WithInternalMsg("handler panic recovered, %v", v)
		}
	}()
	return errs.ErrHandler.Wrap(h(rail, evt))
}
