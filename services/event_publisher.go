package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys published on the order exchange
const (
	EventOrderCreated    = "order.created"
	EventOrderConfirmed  = "order.confirmed"
	EventOrderProcessing = "order.processing"
	EventOrderCompleted  = "order.completed"
	EventOrderCancelled  = "order.cancelled"
	EventPaymentPaid     = "payment.paid"
	EventPaymentFailed   = "payment.failed"
)

// OrderEvent is the envelope published for every order lifecycle event
type OrderEvent struct {
	ID         string                 `json:"id"`
	Pattern    string                 `json:"pattern"`
	OccurredAt time.Time              `json:"occurred_at"`
	Data       map[string]interface{} `json:"data"`
}

// EventPublisherInterface defines how order lifecycle events are published
type EventPublisherInterface interface {
	Publish(ctx context.Context, pattern string, data map[string]interface{}) error
	Close()
}

var eventPublisherInstance EventPublisherInterface

// GetEventPublisher returns the configured event publisher instance
func GetEventPublisher() EventPublisherInterface {
	return eventPublisherInstance
}

// SetEventPublisher sets the event publisher instance (also used by tests)
func SetEventPublisher(p EventPublisherInterface) {
	eventPublisherInstance = p
}

// PublishOrderEvent publishes an order lifecycle event through the configured
// publisher. Publishing is best-effort: failures are logged and never fail
// the request that triggered them.
func PublishOrderEvent(pattern string, data map[string]interface{}) {
	publisher := GetEventPublisher()
	if publisher == nil {
		return
	}
	if err := publisher.Publish(context.Background(), pattern, data); err != nil {
		log.Printf("Failed to publish %s event: %v", pattern, err)
	}
}

// RabbitEventPublisher publishes order events to a RabbitMQ topic exchange
type RabbitEventPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

// NewRabbitEventPublisher dials RabbitMQ and declares the topic exchange
func NewRabbitEventPublisher(amqpURL, exchange string) (*RabbitEventPublisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &RabbitEventPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
	}, nil
}

// Publish sends one event with the pattern as routing key
func (p *RabbitEventPublisher) Publish(ctx context.Context, pattern string, data map[string]interface{}) error {
	event := OrderEvent{
		ID:         uuid.NewString(),
		Pattern:    pattern,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		pattern, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType: "application/json",
			MessageId:   event.ID,
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// Close releases the channel and connection
func (p *RabbitEventPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
