// Package broker publishes import progress events to RabbitMQ.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/david/tender-scout/internal/ingest"
	"github.com/david/tender-scout/internal/logger"
)

const publishTimeout = 2 * time.Second

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn  *amqp.Connection
	ch    channel
	queue string
}

func NewPublisher(uri, queue string) (*Publisher, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

// Publish sends body on the default exchange with the queue as routing key.
func (p *Publisher) Publish(ctx context.Context, body []byte, headers amqp.Table) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.ch.PublishWithContext(
		ctx,
		"",
		p.queue,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
			Headers:      headers,
		},
	)
}

// Report publishes ev as JSON. Broker failures are logged and never reach
// the import.
func (p *Publisher) Report(ctx context.Context, ev ingest.ProgressEvent) {
	body, err := json.Marshal(ev)
	if err != nil {
		logger.FromContext(ctx).Warn("progress_encode_failed", zap.Error(err))
		return
	}
	headers := amqp.Table{
		"batch_id": ev.BatchID.String(),
		"stage":    string(ev.Stage),
	}
	if err := p.Publish(ctx, body, headers); err != nil {
		logger.FromContext(ctx).Warn("progress_publish_failed",
			zap.String("queue", p.queue),
			zap.String("stage", string(ev.Stage)),
			zap.Error(err),
		)
	}
}

func (p *Publisher) Close() error {
	var errCh, errConn error
	if p.ch != nil {
		errCh = p.ch.Close()
	}
	if p.conn != nil {
		errConn = p.conn.Close()
	}
	return errors.Join(errCh, errConn)
}
