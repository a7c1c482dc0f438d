package lettuce

import (
	"strings"

	"github.com/curtisnewbie/lettuce/flow"
	"github.com/curtisnewbie/lettuce/util/errs"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// Exchange that all events are dispatched to.
	ExchangeName = "events"

	// Kind of the exchange, routing is based on the event name.
	ExchangeKind = amqp.ExchangeTopic

	argDeadLetterExchange = "x-dead-letter-exchange"
)

// Declare the topic exchange, it's idempotent on the broker side as long as the durability matches.
func (l *Lettuce) declareExchange(rail flow.Rail) error {
	durable := !l.conf.TransientExchange
	if err := l.ch.ExchangeDeclare(ExchangeName, ExchangeKind, durable, false, false, false, nil); err != nil {
		return errs.ErrConnection.Wrapf(err, "failed to declare exchange, %v, durable: %v", ExchangeName, durable)
	}
	rail.Debugf("Declared %s exchange '%s', durable: %v", ExchangeKind, ExchangeName, durable)
	return nil
}

// Event names are bound as is, topic wildcards would subscribe the worker to other events.
func validateEventName(name string) error {
	if name == "" {
		return errs.ErrConfiguration.WithInternalMsg("event name is required")
	}
	for _, seg := range strings.Split(name, ".") {
		if seg == "*" || seg == "#" {
			return errs.ErrConfiguration.WithInternalMsg("event name '%v' contains wildcard '%v'", name, seg)
		}
	}
	return nil
}

// Declare the durable queue named after the worker.
//
// Caller must hold l.mu.
func (l *Lettuce) declareQueue(rail flow.Rail) error {
	name := l.conf.WorkerName
	if name == "" {
		return errs.ErrConfiguration.WithInternalMsg("worker name is required to declare a queue")
	}

	var args amqp.Table
	if l.conf.DeadLetterExchange != "" {
		args = amqp.Table{argDeadLetterExchange: l.conf.DeadLetterExchange}
	}

	q, err := l.ch.QueueDeclare(name, true, false, false, false, args)
	if err != nil {
		return errs.ErrConnection.Wrapf(err, "failed to declare queue, %v", name)
	}
	rail.Debugf("Declared queue '%s', messages: %d, consumers: %d", q.Name, q.Messages, q.Consumers)
	return nil
}

// Bind the worker queue to the exchange using the exact event name as routing key.
//
// Caller must hold l.mu.
func (l *Lettuce) bindQueue(rail flow.Rail, routingKey string) error {
	queue := l.conf.WorkerName
	if queue == "" {
		return errs.ErrConfiguration.WithInternalMsg("worker name is required to bind a queue")
	}
	if err := validateEventName(routingKey); err != nil {
		return err
	}

	if err := l.ch.QueueBind(queue, routingKey, ExchangeName, false, nil); err != nil {
		return errs.ErrConnection.Wrapf(err, "failed to declare binding, queue: %v, routingkey: %v, exchange: %v", queue, routingKey, ExchangeName)
	}
	rail.Debugf("Declared binding for queue '%s' to exchange '%s' using routingKey '%s'", queue, ExchangeName, routingKey)
	return nil
}
