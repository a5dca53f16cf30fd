package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/go-user-auth/pkg/helpers"
	"github.com/oksasatya/go-user-auth/pkg/mailer"
)

var ErrDeliveriesClosed = errors.New("delivery channel closed")

// Outcome is what happens to a delivery after handling.
type Outcome int

const (
	Ack Outcome = iota
	Requeue
	Drop
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return "drop"
	}
}

// EmailConsumer renders queued email jobs and hands them to a Sender.
type EmailConsumer struct {
	Sender      mailer.Sender
	Logger      *logrus.Logger
	SendTimeout time.Duration
}

func NewEmailConsumer(sender mailer.Sender, logger *logrus.Logger) *EmailConsumer {
	if logger == nil {
		logger = helpers.NewNopLogger()
	}
	return &EmailConsumer{Sender: sender, Logger: logger, SendTimeout: 15 * time.Second}
}

// Handle processes one message body. Malformed payloads are dropped since
// redelivery cannot fix them; send failures are requeued.
func (c *EmailConsumer) Handle(ctx context.Context, body []byte) Outcome {
	var job mailer.EmailJob
	if err := json.Unmarshal(body, &job); err != nil {
		c.Logger.WithError(err).Warn("bad email job payload")
		return Drop
	}
	if err := helpers.RenderJob(&job); err != nil {
		c.Logger.WithError(err).WithField("template", job.Template).Warn("email job cannot be rendered")
		return Drop
	}

	sctx, cancel := context.WithTimeout(ctx, c.SendTimeout)
	defer cancel()
	if err := c.Sender.Send(sctx, job.To, job.Subject, job.Text, job.HTML); err != nil {
		c.Logger.WithError(err).WithField("template", job.Template).Error("email send failed")
		return Requeue
	}
	c.Logger.WithField("template", job.Template).Info("email sent")
	return Ack
}

// Run consumes until ctx is done or the broker closes the channel.
func (c *EmailConsumer) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.settle(d, c.Handle(ctx, d.Body))
		}
	}
}

func (c *EmailConsumer) settle(d amqp.Delivery, o Outcome) {
	var err error
	switch o {
	case Ack:
		err = d.Ack(false)
	case Requeue:
		err = d.Nack(false, true)
	default:
		err = d.Nack(false, false)
	}
	if err != nil {
		c.Logger.WithError(err).WithField("outcome", o.String()).Warn("settle delivery failed")
	}
}

// Subscription is an open consumer on one durable queue.
type Subscription struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	Deliveries <-chan amqp.Delivery
}

// Subscribe declares queue and starts a manual-ack consumer with the given
// prefetch window.
func Subscribe(url, queue string, prefetch int) (*Subscription, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	s := &Subscription{conn: conn, ch: ch}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		s.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		s.Close()
		return nil, err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Deliveries = msgs
	return s, nil
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}
