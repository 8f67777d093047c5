package mail

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/getactive/apiserver/internal/mq"
)

// VerificationMessage is the queue payload for a registration confirmation mail.
type VerificationMessage struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// Broker is the part of mq.MQ the publisher needs.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Publisher hands verification mail to the worker over a broker channel.
type Publisher struct {
	broker  Broker
	channel string
}

func NewPublisher(broker Broker, channel string) *Publisher {
	return &Publisher{broker: broker, channel: channel}
}

// SendVerificationEmail enqueues a confirmation mail for email.
func (p *Publisher) SendVerificationEmail(ctx context.Context, email, username, confirmationToken string) error {
	data, err := json.Marshal(VerificationMessage{
		Email:    email,
		Username: username,
		Token:    confirmationToken,
	})
	if err != nil {
		return err
	}

	if _, err := p.broker.Publish(ctx, p.channel, data, map[string]string{
		mq.AttrContentType: "application/json",
	}); err != nil {
		return fmt.Errorf("failed to publish verification mail: %w", err)
	}
	return nil
}
