// Package events carries report refresh notifications over AMQP. Ingestion
// publishes a RefreshMessage when new cost data lands; hosts consume it and
// revalidate the provider's cached reports.
package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"github.com/AnandSundar/go-reportsync/internal/log"
	"github.com/AnandSundar/go-reportsync/report"
)

// ErrChannelClosed is returned by Consume when the broker closes the delivery channel
var ErrChannelClosed = errors.New("amqp delivery channel closed")

const publishTimeout = 5 * time.Second

// Revalidator refetches the cached reports of a provider.
// *reportsync.Dispatcher implements it.
type Revalidator interface {
	Revalidate(ctx context.Context, provider report.Provider) error
}

// Client publishes and consumes refresh messages on a durable direct exchange
type Client struct {
	conn         *amqp091.Connection
	channel      *amqp091.Channel
	exchangeName string
	queueName    string
	logger       *log.Logger
}

// NewClient dials url and declares the exchange, queue and binding
func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if logger == nil {
		logger = log.FromSlog(nil, log.ComponentAMQP)
	}

	client := &Client{
		conn:         conn,
		channel:      channel,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}

	if err := client.setup(); err != nil {
		client.Close()
		return nil, fmt.Errorf("setup exchange and queue: %w", err)
	}

	return client, nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	_, err = c.channel.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	// routing key is the queue name on a direct exchange
	err = c.channel.QueueBind(c.queueName, c.queueName, c.exchangeName, false, nil)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return nil
}

// PublishRefresh publishes a refresh message for provider
func (c *Client) PublishRefresh(ctx context.Context, provider report.Provider, sourceUUID string) error {
	body, err := NewRefreshMessage(provider, sourceUUID).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = c.channel.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		c.queueName,    // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	c.logger.InfoContext(ctx, "Published refresh message",
		log.FieldOperation, log.OpPublish,
		log.FieldProvider, string(provider),
		"exchange", c.exchangeName,
		"queue", c.queueName)

	return nil
}

// Consume revalidates reports for every refresh message until ctx is done
func (c *Client) Consume(ctx context.Context, r Revalidator) error {
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming refresh messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return ErrChannelClosed
			}
			handleDelivery(ctx, c.logger, r, delivery)
		}
	}
}

// handleDelivery acks handled messages, drops malformed ones and requeues
// messages whose revalidation failed.
func handleDelivery(ctx context.Context, logger *log.Logger, r Revalidator, delivery amqp091.Delivery) {
	msg, err := RefreshMessageFromJSON(delivery.Body)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to decode refresh message",
			log.NewFields().WithOperation(log.OpConsume).WithError(err).ToSlice()...)
		delivery.Nack(false, false)
		return
	}

	fields := log.NewFields().WithOperation(log.OpRevalidate)
	fields[log.FieldProvider] = string(msg.Provider)

	if err := r.Revalidate(ctx, msg.Provider); err != nil {
		logger.ErrorContext(ctx, "Failed to revalidate reports", fields.WithError(err).ToSlice()...)
		delivery.Nack(false, true)
		return
	}

	delivery.Ack(false)
	logger.InfoContext(ctx, "Processed refresh message", fields.ToSlice()...)
}

// Close closes the channel and the connection
func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
