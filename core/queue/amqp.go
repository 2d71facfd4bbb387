package queue

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"incidents-reseau/core/utils"
)

const publishTimeout = 5 * time.Second

// AMQPQueue publishes envelopes to a durable broker queue. The connection
// is opened lazily and re-opened after a broker failure.
type AMQPQueue struct {
	url    string
	name   string
	logger *utils.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewAMQPQueue(url, name string, logger *utils.Logger) *AMQPQueue {
	return &AMQPQueue{url: url, name: name, logger: logger}
}

func (q *AMQPQueue) channel() (*amqp.Channel, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ch != nil && !q.conn.IsClosed() {
		return q.ch, nil
	}
	conn, err := amqp.Dial(q.url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(q.name, true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, err
	}
	q.conn = conn
	q.ch = ch
	return ch, nil
}

func (q *AMQPQueue) Send(ctx context.Context, body []byte) bool {
	ch, err := q.channel()
	if err != nil {
		q.logger.Warnf("queue %s injoignable: %v", q.name, err)
		return false
	}
	sendCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	err = ch.PublishWithContext(sendCtx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		q.logger.Warnf("publication sur la queue %s échouée: %v", q.name, err)
		q.reset()
		return false
	}
	return true
}

func (q *AMQPQueue) Ping(ctx context.Context) bool {
	_, err := q.channel()
	return err == nil
}

func (q *AMQPQueue) reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.conn != nil {
		_ = q.conn.Close()
	}
	q.conn = nil
	q.ch = nil
}

func (q *AMQPQueue) Close() {
	q.reset()
}
