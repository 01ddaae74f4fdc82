package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Event kinds published to the notification exchange. Downstream mailers
// bind queues per kind.
const (
	KindPasswordReset   = "password_reset"
	KindPasswordChanged = "password_changed"
	KindWelcome         = "welcome"
)

// Message is the wire shape of one notification.
type Message struct {
	Kind       string    `json:"kind"`
	Email      string    `json:"email"`
	ResetToken string    `json:"reset_token,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

// channel is the slice of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Publisher delivers account notifications to a RabbitMQ exchange. It
// implements the engine's Notifier interface; a mailer service consumes
// the queue and sends the actual email.
type Publisher struct {
	ch       channel
	exchange string
}

// NewPublisher declares a durable direct exchange on ch and returns a
// publisher bound to it.
func NewPublisher(ch *amqp.Channel, exchange string) (*Publisher, error) {
	if ch == nil {
		return nil, errors.New("amqp channel required")
	}
	if exchange == "" {
		exchange = "authcore.notifications"
	}

	err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &Publisher{ch: ch, exchange: exchange}, nil
}

// SendPasswordResetNotification publishes a reset message carrying the
// credential for the mailer to embed in the reset link.
func (p *Publisher) SendPasswordResetNotification(ctx context.Context, email, resetToken string) error {
	return p.publish(ctx, Message{
		Kind:       KindPasswordReset,
		Email:      email,
		ResetToken: resetToken,
		IssuedAt:   time.Now().UTC(),
	})
}

// SendPasswordChangedNotification publishes a password-changed notice.
func (p *Publisher) SendPasswordChangedNotification(ctx context.Context, email string) error {
	return p.publish(ctx, Message{
		Kind:     KindPasswordChanged,
		Email:    email,
		IssuedAt: time.Now().UTC(),
	})
}

// SendWelcomeNotification publishes a welcome notice for a new account.
func (p *Publisher) SendWelcomeNotification(ctx context.Context, email string) error {
	return p.publish(ctx, Message{
		Kind:     KindWelcome,
		Email:    email,
		IssuedAt: time.Now().UTC(),
	})
}

func (p *Publisher) publish(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.ch.PublishWithContext(ctx, p.exchange, msg.Kind, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.IssuedAt,
		Body:         body,
	})
}
