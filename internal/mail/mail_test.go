package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/getactive/apiserver/config"
	"github.com/getactive/apiserver/internal/mq"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (m *recordingMailer) Send(_ context.Context, email Email) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

func (m *recordingMailer) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Email(nil), m.sent...)
}

func testMailConfig() config.MailConfig {
	return config.MailConfig{
		From:       "noreply@getactive.test",
		Channel:    "verification-mail",
		ConfirmURL: "http://localhost:3000/register/confirm",
	}
}

func TestPublisherThenWorkerDeliversMail(t *testing.T) {
	logger, _ := test.NewNullLogger()
	broker := mq.New(mq.NewMemoryBroker(4))
	mailer := &recordingMailer{}
	cfg := testMailConfig()

	pub := NewPublisher(broker, cfg.Channel)
	require.NoError(t, pub.SendVerificationEmail(context.Background(), "amy@bu.edu", "amy", "tok.en"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWorker(broker, mailer, cfg, logger).Run(ctx) }()

	require.Eventually(t, func() bool { return len(mailer.Sent()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)

	sent := mailer.Sent()[0]
	assert.Equal(t, "amy@bu.edu", sent.To)
	assert.Equal(t, cfg.From, sent.From)
	assert.Equal(t, verificationSubject, sent.Subject)
	assert.Contains(t, sent.Body, "Hi amy")
	assert.Contains(t, sent.Body, "http://localhost:3000/register/confirm?token=tok.en")
}

func TestWorkerDropsMalformedMessages(t *testing.T) {
	logger, hook := test.NewNullLogger()
	mailer := &recordingMailer{}
	w := NewWorker(nil, mailer, testMailConfig(), logger)

	err := w.Handle(context.Background(), mq.Message{ID: "1", Data: []byte("{not json")})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)

	err = w.Handle(context.Background(), mq.Message{ID: "2", Data: []byte(`{"email":"a@bu.edu"}`)})
	require.NoError(t, err)
	assert.Empty(t, mailer.sent)
}

func TestWorkerReturnsSendErrorsForRedelivery(t *testing.T) {
	logger, _ := test.NewNullLogger()
	mailer := &recordingMailer{err: errors.New("relay down")}
	w := NewWorker(nil, mailer, testMailConfig(), logger)

	err := w.Handle(context.Background(), mq.Message{
		ID:   "1",
		Data: []byte(`{"email":"a@bu.edu","username":"a","token":"t"}`),
	})
	assert.EqualError(t, err, "relay down")
}

type failingBroker struct{}

func (failingBroker) Publish(context.Context, string, []byte, map[string]string) (string, error) {
	return "", mq.ErrQueueFull
}

func TestPublisherWrapsBrokerErrors(t *testing.T) {
	err := NewPublisher(failingBroker{}, "verification-mail").
		SendVerificationEmail(context.Background(), "a@bu.edu", "a", "t")
	assert.ErrorIs(t, err, mq.ErrQueueFull)
}

func TestConfirmationLinkKeepsExistingQuery(t *testing.T) {
	link := confirmationLink("https://getactive.test/confirm?lang=en", "abc")
	assert.Equal(t, "https://getactive.test/confirm?lang=en&token=abc", link)
}

func TestNewMailerSelectsImplementation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	assert.IsType(t, &LogMailer{}, NewMailer(config.SMTPConfig{}, logger))
	assert.IsType(t, &SMTPMailer{}, NewMailer(config.SMTPConfig{Host: "smtp.test", Port: 25}, logger))
}

func TestSMTPMailerFormatsMessage(t *testing.T) {
	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	m := &SMTPMailer{
		cfg: config.SMTPConfig{Host: "smtp.test", Port: 2525},
		send: func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotTo, gotMsg = addr, to, string(msg)
			assert.Nil(t, a)
			return nil
		},
	}

	err := m.Send(context.Background(), Email{From: "f@x", To: "t@x", Subject: "Hello", Body: "body"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.test:2525", gotAddr)
	assert.Equal(t, []string{"t@x"}, gotTo)
	assert.True(t, strings.HasPrefix(gotMsg, "From: f@x\r\nTo: t@x\r\nSubject: Hello\r\n"))
	assert.True(t, strings.HasSuffix(gotMsg, "\r\n\r\nbody"))
}
