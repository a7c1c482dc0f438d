package lettuce

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// In-memory broker with the subset of RabbitMQ semantics that lettuce relies on: topic exchange,
// durable queues, manual acks, and redelivery of unacknowledged messages when a channel is closed.
//
// Messages are routed by exact match of the binding key, '*' and '#' are not supported. Lettuce never binds
// with wildcards, AddListener rejects them.
type fakeBroker struct {
	mu           sync.Mutex
	exchanges    map[string]fakeExchange
	queues       map[string]*fakeQueue
	conns        []*fakeConn
	calls        []string
	dialErr      error
	nackConfirms bool
}

type fakeExchange struct {
	kind    string
	durable bool
}

type fakeQueue struct {
	name     string
	args     amqp.Table
	bindings map[string]bool
	ready    []fakeMsg
	dead     []fakeMsg
	signal   chan struct{}
}

type fakeMsg struct {
	routingKey  string
	pub         amqp.Publishing
	redelivered bool
}

type unackedMsg struct {
	queue *fakeQueue
	msg   fakeMsg
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		exchanges: map[string]fakeExchange{},
		queues:    map[string]*fakeQueue{},
	}
}

func (b *fakeBroker) dialer() Dialer {
	return func(brokerUrl string, conf amqp.Config) (BrokerConn, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.calls = append(b.calls, "Dial")
		if b.dialErr != nil {
			return nil, b.dialErr
		}
		c := &fakeConn{b: b}
		b.conns = append(b.conns, c)
		return c, nil
	}
}

func (b *fakeBroker) recordLocked(format string, args ...any) {
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

func (b *fakeBroker) called(call string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c == call {
			return true
		}
	}
	return false
}

func (b *fakeBroker) calledPrefix(prefix string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func (b *fakeBroker) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// number of ready (not yet delivered) and dead-lettered messages of the queue
func (b *fakeBroker) queueStat(name string) (ready int, dead int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return 0, 0
	}
	return len(q.ready), len(q.dead)
}

func (b *fakeBroker) readyBodies(name string) [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.queues[name]
	if !ok {
		return nil
	}
	bodies := make([][]byte, 0, len(q.ready))
	for _, m := range q.ready {
		bodies = append(bodies, m.pub.Body)
	}
	return bodies
}

func (b *fakeBroker) queueArgs(name string) amqp.Table {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[name]; ok {
		return q.args
	}
	return nil
}

// route message as if it's published by some other client
func (b *fakeBroker) inject(routingKey string, body []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.routeLocked(routingKey, amqp.Publishing{Body: body})
}

// simulate the broker closing all connections
func (b *fakeBroker) dropConnections() {
	b.mu.Lock()
	conns := append([]*fakeConn(nil), b.conns...)
	b.mu.Unlock()
	for _, c := range conns {
		_ = c.Close()
	}
}

// exact match only, no topic wildcards
func (b *fakeBroker) routeLocked(routingKey string, pub amqp.Publishing) {
	for _, q := range b.queues {
		if q.bindings[routingKey] {
			q.ready = append(q.ready, fakeMsg{routingKey: routingKey, pub: pub})
			q.poke()
		}
	}
}

func (q *fakeQueue) poke() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

type fakeConn struct {
	b        *fakeBroker
	closed   bool
	channels []*fakeChannel
}

func (c *fakeConn) Channel() (BrokerChannel, error) {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	if c.closed {
		return nil, amqp.ErrClosed
	}
	ch := &fakeChannel{
		b:         c.b,
		unacked:   map[uint64]unackedMsg{},
		consumers: map[string]*fakeConsumer{},
	}
	c.channels = append(c.channels, ch)
	return ch, nil
}

func (c *fakeConn) IsClosed() bool {
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	return c.closed
}

func (c *fakeConn) Close() error {
	c.b.mu.Lock()
	if c.closed {
		c.b.mu.Unlock()
		return amqp.ErrClosed
	}
	c.closed = true
	channels := append([]*fakeChannel(nil), c.channels...)
	c.b.mu.Unlock()

	for _, ch := range channels {
		_ = ch.Close()
	}
	return nil
}

type fakeConsumer struct {
	tag   string
	queue *fakeQueue
	out   chan amqp.Delivery
	stop  chan struct{}
	done  chan struct{}
}

type fakeChannel struct {
	b          *fakeBroker
	closed     bool
	confirming bool
	confirmCh  chan amqp.Confirmation
	pubSeq     uint64
	tagSeq     uint64
	unacked    map[uint64]unackedMsg
	consumers  map[string]*fakeConsumer
}

func (ch *fakeChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.b.recordLocked("ExchangeDeclare:%v:%v:%v", name, kind, durable)
	if prev, ok := ch.b.exchanges[name]; ok {
		if prev.kind != kind {
			return fmt.Errorf("PRECONDITION_FAILED - inequivalent arg 'type' for exchange '%v'", name)
		}
		if prev.durable != durable {
			return fmt.Errorf("PRECONDITION_FAILED - inequivalent arg 'durable' for exchange '%v'", name)
		}
	}
	ch.b.exchanges[name] = fakeExchange{kind: kind, durable: durable}
	return nil
}

func (ch *fakeChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.Queue{}, amqp.ErrClosed
	}
	ch.b.recordLocked("QueueDeclare:%v:%v", name, durable)
	q, ok := ch.b.queues[name]
	if !ok {
		q = &fakeQueue{name: name, args: args, bindings: map[string]bool{}, signal: make(chan struct{}, 1)}
		ch.b.queues[name] = q
	}
	return amqp.Queue{Name: name, Messages: len(q.ready)}, nil
}

func (ch *fakeChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	ch.b.recordLocked("QueueBind:%v:%v:%v", name, key, exchange)
	q, ok := ch.b.queues[name]
	if !ok {
		return fmt.Errorf("NOT_FOUND - no queue '%v'", name)
	}
	if _, ok := ch.b.exchanges[exchange]; !ok {
		return fmt.Errorf("NOT_FOUND - no exchange '%v'", exchange)
	}
	q.bindings[key] = true
	return nil
}

func (ch *fakeChannel) Qos(prefetchCount, prefetchSize int, global bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.b.recordLocked("Qos:%v", prefetchCount)
	return nil
}

func (ch *fakeChannel) Confirm(noWait bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.b.recordLocked("Confirm")
	ch.confirming = true
	return nil
}

func (ch *fakeChannel) NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	ch.confirmCh = confirm
	return confirm
}

func (ch *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, ok := ch.b.exchanges[exchange]; !ok {
		return fmt.Errorf("NOT_FOUND - no exchange '%v'", exchange)
	}
	ch.b.routeLocked(key, msg)

	if ch.confirming && ch.confirmCh != nil {
		ch.pubSeq++
		select {
		case ch.confirmCh <- amqp.Confirmation{DeliveryTag: ch.pubSeq, Ack: !ch.b.nackConfirms}:
		default:
		}
	}
	return nil
}

func (ch *fakeChannel) Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return nil, amqp.ErrClosed
	}
	ch.b.recordLocked("Consume:%v", queue)
	q, ok := ch.b.queues[queue]
	if !ok {
		return nil, fmt.Errorf("NOT_FOUND - no queue '%v'", queue)
	}
	fc := &fakeConsumer{
		tag:   consumer,
		queue: q,
		out:   make(chan amqp.Delivery),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	ch.consumers[consumer] = fc
	go ch.runConsumer(fc)
	return fc.out, nil
}

func (ch *fakeChannel) runConsumer(fc *fakeConsumer) {
	defer close(fc.done)
	defer close(fc.out)
	for {
		d, ok := ch.next(fc)
		if !ok {
			select {
			case <-fc.queue.signal:
				continue
			case <-fc.stop:
				return
			}
		}
		select {
		case fc.out <- d:
		case <-fc.stop:
			return // d stays unacked, it's requeued when the channel is closed
		}
	}
}

func (ch *fakeChannel) next(fc *fakeConsumer) (amqp.Delivery, bool) {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	q := fc.queue
	if ch.closed || len(q.ready) < 1 {
		return amqp.Delivery{}, false
	}
	m := q.ready[0]
	q.ready = q.ready[1:]
	ch.tagSeq++
	ch.unacked[ch.tagSeq] = unackedMsg{queue: q, msg: m}
	return amqp.Delivery{
		Acknowledger: ch,
		Headers:      m.pub.Headers,
		ContentType:  m.pub.ContentType,
		MessageId:    m.pub.MessageId,
		ConsumerTag:  fc.tag,
		DeliveryTag:  ch.tagSeq,
		Redelivered:  m.redelivered,
		Exchange:     ExchangeName,
		RoutingKey:   m.routingKey,
		Body:         m.pub.Body,
	}, true
}

func (ch *fakeChannel) Cancel(consumer string, noWait bool) error {
	ch.b.mu.Lock()
	fc, ok := ch.consumers[consumer]
	delete(ch.consumers, consumer)
	ch.b.mu.Unlock()
	if !ok {
		return errors.New("unknown consumer tag")
	}
	close(fc.stop)
	<-fc.done
	return nil
}

func (ch *fakeChannel) Close() error {
	ch.b.mu.Lock()
	if ch.closed {
		ch.b.mu.Unlock()
		return amqp.ErrClosed
	}
	ch.closed = true
	consumers := make([]*fakeConsumer, 0, len(ch.consumers))
	for _, fc := range ch.consumers {
		consumers = append(consumers, fc)
	}
	ch.consumers = map[string]*fakeConsumer{}
	ch.b.mu.Unlock()

	for _, fc := range consumers {
		close(fc.stop)
		<-fc.done
	}

	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()

	// unacked messages go back to the head of their queues, in delivery order
	tags := make([]uint64, 0, len(ch.unacked))
	for t := range ch.unacked {
		tags = append(tags, t)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] > tags[j] })
	for _, t := range tags {
		u := ch.unacked[t]
		u.msg.redelivered = true
		u.queue.ready = append([]fakeMsg{u.msg}, u.queue.ready...)
		u.queue.poke()
	}
	ch.unacked = map[uint64]unackedMsg{}

	if ch.confirmCh != nil {
		close(ch.confirmCh)
		ch.confirmCh = nil
	}
	return nil
}

func (ch *fakeChannel) Ack(tag uint64, multiple bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	if _, ok := ch.unacked[tag]; !ok {
		return fmt.Errorf("PRECONDITION_FAILED - unknown delivery tag %v", tag)
	}
	delete(ch.unacked, tag)
	return nil
}

func (ch *fakeChannel) Nack(tag uint64, multiple bool, requeue bool) error {
	ch.b.mu.Lock()
	defer ch.b.mu.Unlock()
	if ch.closed {
		return amqp.ErrClosed
	}
	u, ok := ch.unacked[tag]
	if !ok {
		return fmt.Errorf("PRECONDITION_FAILED - unknown delivery tag %v", tag)
	}
	delete(ch.unacked, tag)
	ch.b.recordLocked("Nack:%v:%v", u.msg.routingKey, requeue)
	if requeue {
		u.msg.redelivered = true
		u.queue.ready = append([]fakeMsg{u.msg}, u.queue.ready...)
		u.queue.poke()
		return nil
	}
	u.queue.dead = append(u.queue.dead, u.msg)
	return nil
}

func (ch *fakeChannel) Reject(tag uint64, requeue bool) error {
	return ch.Nack(tag, false, requeue)
}
