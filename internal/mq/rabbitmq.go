package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/getactive/apiserver/config"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQClient publishes on a shared channel and opens a dedicated
// channel per subscription so prefetch limits apply per consumer.
type RabbitMQClient struct {
	conn *amqp.Connection
	cfg  config.RabbitMQConfig

	mu       sync.Mutex
	pub      *amqp.Channel
	declared map[string]struct{}
}

// NewRabbitMQClient dials the broker at cfg.URL.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	pub, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	return &RabbitMQClient{
		conn:     conn,
		cfg:      cfg,
		pub:      pub,
		declared: make(map[string]struct{}),
	}, nil
}

// Publish sends data to the queue named channel, declaring it on first use.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	attrs = withContentType(attrs)
	headers := make(amqp.Table, len(attrs))
	for key, value := range attrs {
		headers[key] = value
	}
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.declareLocked(r.pub, channel); err != nil {
		return "", err
	}
	err := r.pub.PublishWithContext(ctx, "", channel, false, false, amqp.Publishing{
		ContentType:  attrs[AttrContentType],
		DeliveryMode: r.deliveryMode(),
		MessageId:    id,
		Headers:      headers,
		Body:         data,
	})
	if err != nil {
		return "", fmt.Errorf("publish to %s: %w", channel, err)
	}
	return id, nil
}

// Subscribe consumes the queue named channel until ctx is done. A failed
// delivery is requeued once; a second failure drops it.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()

	if r.cfg.PrefetchCount > 0 {
		if err := ch.Qos(r.cfg.PrefetchCount, 0, false); err != nil {
			return fmt.Errorf("set prefetch: %w", err)
		}
	}

	r.mu.Lock()
	err = r.declareLocked(ch, channel)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	tag := "getactive-" + uuid.NewString()
	deliveries, err := ch.ConsumeWithContext(ctx, channel, tag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", channel, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			msg := Message{
				ID:         d.MessageId,
				Data:       d.Body,
				Attributes: headersToAttributes(d.Headers),
			}
			if err := handler(ctx, msg); err != nil {
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Close closes the publishing channel and the connection.
func (r *RabbitMQClient) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pub != nil {
		_ = r.pub.Close()
	}
	return r.conn.Close()
}

func (r *RabbitMQClient) deliveryMode() uint8 {
	if r.cfg.QueueDurable {
		return amqp.Persistent
	}
	return amqp.Transient
}

// declareLocked declares name once per client. r.mu must be held.
func (r *RabbitMQClient) declareLocked(ch *amqp.Channel, name string) error {
	if _, ok := r.declared[name]; ok {
		return nil
	}
	if _, err := ch.QueueDeclare(name, r.cfg.QueueDurable, r.cfg.QueueAutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	r.declared[name] = struct{}{}
	return nil
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch v := value.(type) {
		case string:
			attrs[key] = v
		case []byte:
			attrs[key] = string(v)
		default:
			attrs[key] = fmt.Sprint(v)
		}
	}
	return attrs
}
