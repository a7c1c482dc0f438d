package lettuce

import (
	"context"
	"time"

	"github.com/curtisnewbie/lettuce/flow"
	"github.com/curtisnewbie/lettuce/util/errs"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	contentTypeJson = "application/json"
)

/*
Dispatch event to the 'events' exchange using the event name as the routing key.

The returned Event carries the generated id, the name and the data (a fresh empty map if data is nil).

When publisher confirm is enabled, Dispatch returns after the broker confirms the message, otherwise it returns
once the message is written. Dispatched only means that the broker accepted the message for routing.

Failures are not retried.
*/
func (l *Lettuce) Dispatch(rail flow.Rail, name string, data map[string]any) (Event, error) {
	if name == "" {
		return Event{}, errs.ErrConfiguration.WithInternalMsg("event name is required")
	}

	evt := NewEvent(name, data)
	body, err := MarshalEvent(evt)
	if err != nil {
		return Event{}, err
	}

	headers := amqp.Table{}
	flow.WritePropagationKeysToHeaders(rail, headers)

	publishing := amqp.Publishing{
		ContentType:  contentTypeJson,
		DeliveryMode: amqp.Persistent,
		MessageId:    evt.Id,
		Timestamp:    time.Now(),
		AppId:        l.conf.AppName,
		Headers:      headers,
		Body:         body,
	}
	if err := l.publish(rail, name, publishing); err != nil {
		return Event{}, err
	}

	dispatchedCounter.WithLabelValues(name).Inc()
	rail.Infof("Event '%v' dispatched with data: %v", name, evt.Data)
	return evt, nil
}

func (l *Lettuce) publish(rail flow.Rail, routingKey string, msg amqp.Publishing) error {
	l.pubMu.Lock()
	defer l.pubMu.Unlock()

	ch, err := l.channel()
	if err != nil {
		return err
	}

	ctx := rail.Context()
	if l.conf.PublisherConfirm {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.conf.ConfirmTimeout)
		defer cancel()
	}

	if err := ch.PublishWithContext(ctx, ExchangeName, routingKey, false, false, msg); err != nil {
		return errs.ErrConnection.Wrapf(err, "failed to publish message, exchange: '%v', routingKey: '%v'", ExchangeName, routingKey)
	}

	if !l.conf.PublisherConfirm {
		return nil
	}

	// delivery tags of confirmations start at 1 and increase by one for each publishing on the channel
	l.pubSeq++
	for {
		select {
		case c, ok := <-l.confirms:
			if !ok {
				return errs.ErrConnection.WithInternalMsg("channel closed before message '%v' was confirmed", msg.MessageId)
			}
			if c.DeliveryTag < l.pubSeq {
				continue // late confirmation of a publishing that timed out
			}
			if !c.Ack {
				return errs.ErrConnection.WithInternalMsg("message '%v' not published, server failed to confirm", msg.MessageId)
			}
			rail.Debugf("Message '%v' confirmed, deliveryTag: %v", msg.MessageId, c.DeliveryTag)
			return nil
		case <-ctx.Done():
			return errs.ErrConnection.Wrapf(ctx.Err(), "timeout waiting for confirmation of message '%v'", msg.MessageId)
		}
	}
}
