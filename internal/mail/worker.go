package mail

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"text/template"

	"github.com/getactive/apiserver/config"
	"github.com/getactive/apiserver/internal/mq"
	"github.com/sirupsen/logrus"
)

const verificationSubject = "Confirm your GetActive registration"

var verificationTemplate = template.Must(template.New("verification").Parse(`Hi {{.Username}},

thanks for signing up for GetActive. Confirm your email address by opening the link below:

{{.Link}}

If you did not create an account you can ignore this message.
`))

// Subscriber is the part of mq.MQ the worker needs.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Worker consumes verification messages and sends them through a Mailer.
type Worker struct {
	sub        Subscriber
	mailer     Mailer
	from       string
	channel    string
	confirmURL string
	logger     logrus.FieldLogger
}

func NewWorker(sub Subscriber, mailer Mailer, cfg config.MailConfig, logger logrus.FieldLogger) *Worker {
	return &Worker{
		sub:        sub,
		mailer:     mailer,
		from:       cfg.From,
		channel:    cfg.Channel,
		confirmURL: cfg.ConfirmURL,
		logger:     logger.WithField("component", "mail-worker"),
	}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.WithField("channel", w.channel).Info("mail worker started")
	err := w.sub.Subscribe(ctx, w.channel, w.Handle)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Handle renders and sends one verification message. Malformed payloads are
// dropped since redelivery cannot fix them.
func (w *Worker) Handle(ctx context.Context, msg mq.Message) error {
	var vm VerificationMessage
	if err := json.Unmarshal(msg.Data, &vm); err != nil {
		w.logger.WithError(err).WithField("message_id", msg.ID).Warn("dropping malformed mail message")
		return nil
	}
	if vm.Email == "" || vm.Token == "" {
		w.logger.WithField("message_id", msg.ID).Warn("dropping incomplete mail message")
		return nil
	}

	email, err := w.render(vm)
	if err != nil {
		return err
	}
	if err := w.mailer.Send(ctx, email); err != nil {
		w.logger.WithError(err).WithField("message_id", msg.ID).Error("failed to send verification mail")
		return err
	}
	w.logger.WithFields(logrus.Fields{"message_id": msg.ID, "username": vm.Username}).Debug("verification mail sent")
	return nil
}

func (w *Worker) render(vm VerificationMessage) (Email, error) {
	var body strings.Builder
	err := verificationTemplate.Execute(&body, struct {
		Username string
		Link     string
	}{
		Username: vm.Username,
		Link:     confirmationLink(w.confirmURL, vm.Token),
	})
	if err != nil {
		return Email{}, fmt.Errorf("failed to render verification mail: %w", err)
	}
	return Email{From: w.from, To: vm.Email, Subject: verificationSubject, Body: body.String()}, nil
}

func confirmationLink(base, token string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + "?token=" + url.QueryEscape(token)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
