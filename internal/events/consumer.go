package events

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"halo-bridge/internal/domain"
	"halo-bridge/internal/export"
	"halo-bridge/internal/metrics"
)

// Settings for the order-saved consumer.
type Settings struct {
	Brokers  []string
	Topic    string
	DLQTopic string
	GroupID  string
}

type dispatcher interface {
	Dispatch(ctx context.Context, order *domain.Order) (*export.Task, error)
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads order-saved events and feeds them to the export
// dispatcher. Poison messages (bad JSON, invalid orders) are committed
// and forwarded to the DLQ topic; transient dispatch failures are not,
// so the broker redelivers them.
type Consumer struct {
	reader     messageReader
	dlqWriter  messageWriter
	dispatcher dispatcher
	log        *log.Logger
}

func NewConsumer(settings Settings, d dispatcher, logger *log.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  settings.Brokers,
		GroupID:  settings.GroupID,
		Topic:    settings.Topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	dlqWriter := &kafka.Writer{
		Addr:     kafka.TCP(settings.Brokers...),
		Topic:    settings.DLQTopic,
		Balancer: &kafka.LeastBytes{},
	}
	return &Consumer{reader: reader, dlqWriter: dlqWriter, dispatcher: d, log: logger}
}

// Run consumes until the context is cancelled. Commits are manual:
// a message is committed only once handled or parked in the DLQ.
func (c *Consumer) Run(ctx context.Context) {
	c.log.Printf("order event consumer started")
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.log.Printf("close reader: %v", err)
		}
		if err := c.dlqWriter.Close(); err != nil {
			c.log.Printf("close dlq writer: %v", err)
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				c.log.Printf("order event consumer stopping")
				return
			}
			c.log.Printf("fetch message: %v", err)
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// leave uncommitted; the broker redelivers
			c.log.Printf("handle message (key %s): %v", string(msg.Key), err)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Printf("commit message: %v", err)
		}
	}
}

// handle returns an error only for transient failures worth a retry.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	correlation := uuid.NewString()

	var order domain.Order
	if err := json.Unmarshal(msg.Value, &order); err != nil {
		c.log.Printf("[%s] malformed order event, sending to DLQ: %v", correlation, err)
		c.sendToDLQ(ctx, msg, "json_unmarshal_error", err)
		metrics.EventMessages.WithLabelValues("dlq_decode").Inc()
		return nil
	}

	task, err := c.dispatcher.Dispatch(ctx, &order)
	if err != nil {
		// validation failures are permanent; park the message
		c.log.Printf("[%s] order %s rejected, sending to DLQ: %v", correlation, order.IncrementID, err)
		c.sendToDLQ(ctx, msg, "dispatch_rejected", err)
		metrics.EventMessages.WithLabelValues("dlq_dispatch").Inc()
		return nil
	}

	c.log.Printf("[%s] order %s dispatched", correlation, order.IncrementID)
	metrics.EventMessages.WithLabelValues("success").Inc()
	_ = task // detached; the dispatcher logs the outcome
	return nil
}

func (c *Consumer) sendToDLQ(ctx context.Context, original kafka.Message, reason string, cause error) {
	err := c.dlqWriter.WriteMessages(ctx, kafka.Message{
		Key:   original.Key,
		Value: original.Value,
		Headers: []kafka.Header{
			{Key: "X-Original-Topic", Value: []byte(original.Topic)},
			{Key: "X-Error-Reason", Value: []byte(reason)},
			{Key: "X-Error-Details", Value: []byte(cause.Error())},
		},
	})
	if err != nil {
		c.log.Printf("write to DLQ: %v", err)
	}
}
