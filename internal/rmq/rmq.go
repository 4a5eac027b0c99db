// Package rmq carries dispatch jobs over a durable RabbitMQ queue so that the
// API and the workers can run as separate processes.
package rmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"EmailBlaster/internal/models"
)

func dial(ctx context.Context, url string) (*amqp.Connection, error) {
	var conn *amqp.Connection

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 30 * time.Second

	err := backoff.Retry(func() error {
		c, err := amqp.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return nil, fmt.Errorf("rabbitmq unreachable: %w", err)
	}
	return conn, nil
}

func open(ctx context.Context, url, queue string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := dial(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}
	return conn, ch, nil
}

type Publisher struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewPublisher(ctx context.Context, url, queue string) (*Publisher, error) {
	conn, ch, err := open(ctx, url, queue)
	if err != nil {
		return nil, err
	}
	return &Publisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *Publisher) Close() error {
	_ = p.ch.Close()
	return p.conn.Close()
}

// Enqueue publishes job as a persistent JSON message. Only the account id
// travels with the job; credentials are loaded by the worker.
func (p *Publisher) Enqueue(ctx context.Context, job models.DispatchJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx,
		"", p.queue, false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			MessageId:    fmt.Sprintf("campaign-%d", job.CampaignID),
			Body:         body,
		})
}

type Consumer struct {
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
	log   *zap.Logger
}

// NewConsumer limits unacknowledged deliveries to prefetch, normally the
// worker count.
func NewConsumer(ctx context.Context, url, queue string, prefetch int, logger *zap.Logger) (*Consumer, error) {
	conn, ch, err := open(ctx, url, queue)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &Consumer{conn: conn, ch: ch, queue: queue, log: logger}, nil
}

func (c *Consumer) Close() error {
	_ = c.ch.Close()
	return c.conn.Close()
}

// Run forwards decoded jobs to out until ctx is done or the channel closes.
// A delivery is acked once a worker has taken it, so a crash mid-pass does
// not replay the pass. Jobs not yet handed over at shutdown are requeued.
func (c *Consumer) Run(ctx context.Context, out chan<- models.DispatchJob) error {
	msgs, err := c.ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	c.log.Info("consumer started", zap.String("queue", c.queue))

	for {
		select {
		case <-ctx.Done():
			c.log.Info("consumer stopping")
			return ctx.Err()

		case d, ok := <-msgs:
			if !ok {
				c.log.Warn("consumer channel closed")
				return nil
			}

			job, err := decodeJob(d.Body)
			if err != nil {
				c.log.Warn("dropping malformed job", zap.Error(err))
				_ = d.Ack(false)
				continue
			}

			select {
			case out <- job:
				_ = d.Ack(false)
			case <-ctx.Done():
				_ = d.Nack(false, true)
				return ctx.Err()
			}
		}
	}
}

func decodeJob(body []byte) (models.DispatchJob, error) {
	var job models.DispatchJob
	if err := json.Unmarshal(body, &job); err != nil {
		return job, err
	}
	if job.CampaignID <= 0 {
		return job, errors.New("job without campaign id")
	}
	return job, nil
}
