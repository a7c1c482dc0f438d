package lettuce

import (
	"context"
	"net/url"

	"github.com/curtisnewbie/lettuce/flow"
	"github.com/curtisnewbie/lettuce/util/errs"
	"github.com/curtisnewbie/lettuce/version"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// buffered confirmations, late confirmations of timed-out publishings must not block the connection
	confirmBufSize = 16
)

// Dial broker and return the connection.
//
// AmqpDialer is used by default, tests may provide their own.
type Dialer func(brokerUrl string, conf amqp.Config) (BrokerConn, error)

// Connection to broker, implemented by *amqp.Connection through AmqpDialer.
type BrokerConn interface {
	Channel() (BrokerChannel, error)
	IsClosed() bool
	Close() error
}

// Channel of a BrokerConn, *amqp.Channel implements it.
type BrokerChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

var _ BrokerChannel = (*amqp.Channel)(nil)

type amqpConn struct {
	*amqp.Connection
}

func (c amqpConn) Channel() (BrokerChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

// Dial RabbitMQ using amqp091-go.
func AmqpDialer(brokerUrl string, conf amqp.Config) (BrokerConn, error) {
	c, err := amqp.DialConfig(brokerUrl, conf)
	if err != nil {
		return nil, err
	}
	return amqpConn{c}, nil
}

// Establish connection and open the channel that the instance uses for everything.
func (l *Lettuce) initConnection(rail flow.Rail, brokerUrl string) error {
	dial := l.conf.Dialer
	if dial == nil {
		dial = AmqpDialer
	}

	c := amqp.Config{
		Properties: amqp.Table{
			"connection_name": l.conf.AppName,
			"product":         "lettuce",
			"version":         version.Version,
		},
	}
	rail.Infof("Establish connection to RabbitMQ: '%s'", redactUrl(brokerUrl))

	conn, err := dial(brokerUrl, c)
	if err != nil {
		return errs.ErrConnection.Wrapf(err, "failed to connect to '%v'", redactUrl(brokerUrl))
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errs.ErrConnection.Wrapf(err, "failed to open channel")
	}

	if l.conf.PublisherConfirm {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return errs.ErrConnection.Wrapf(err, "channel could not be put into confirm mode")
		}
		l.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, confirmBufSize))
	}

	l.conn = conn
	l.ch = ch
	rail.Debugf("RabbitMQ connection established, publisher confirm: %v", l.conf.PublisherConfirm)
	return nil
}

// Close channel and connection.
//
// The connection is closed only once, calling it again returns ErrConfiguration.
func (l *Lettuce) closeConnection(rail flow.Rail) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeConnectionLocked(rail)
}

func (l *Lettuce) closeConnectionLocked(rail flow.Rail) error {
	if l.conn == nil {
		return errs.ErrConfiguration.WithInternalMsg("connection already closed")
	}

	rail.Info("Closing connection")
	var err error
	if cerr := l.ch.Close(); cerr != nil && !l.conn.IsClosed() {
		rail.Warnf("Failed to close RabbitMQ channel, %v", cerr)
	}
	if !l.conn.IsClosed() {
		err = l.conn.Close()
	}
	l.conn = nil
	l.ch = nil
	l.state = StateStopped
	return errs.ErrConnection.Wrap(err)
}

// Remove password from broker url, the url is logged.
func redactUrl(brokerUrl string) string {
	u, err := url.Parse(brokerUrl)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
