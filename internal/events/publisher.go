package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, key string, msg Envelope) error
	Close() error
}

type amqpPublisher struct {
	conn     *amqp.Connection
	exchange string
	logger   *zap.Logger
}

// NewAMQP declares exchange as a durable topic exchange on conn and returns a
// publisher that owns conn.
func NewAMQP(conn *amqp.Connection, exchange string, logger *zap.Logger) (Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &amqpPublisher{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With(zap.String("component", "publisher")),
	}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, key string, msg Envelope) error {
	pub, err := newPublishing(msg)
	if err != nil {
		return err
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.PublishWithContext(ctx, p.exchange, key, false, false, pub); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	p.logger.Debug("published",
		zap.String("key", key),
		zap.String("exchange", p.exchange),
		zap.String("message_id", pub.MessageId),
	)
	return nil
}

func (p *amqpPublisher) Close() error {
	return p.conn.Close()
}

func newPublishing(msg Envelope) (amqp.Publishing, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("encode %s: %w", msg.Meta.Type, err)
	}

	msgID := msg.Meta.ID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	cid := msgID
	if msg.Meta.CorrelationID != nil {
		cid = *msg.Meta.CorrelationID
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     msgID,
		CorrelationId: cid,
		Type:          msg.Meta.Type,
		Timestamp:     time.Now(),
		Body:          body,
	}, nil
}

// DialWithRetry connects to the broker, backing off exponentially between
// attempts. It gives up after attempts tries or when ctx is cancelled.
func DialWithRetry(ctx context.Context, url string, attempts int, initial time.Duration, logger *zap.Logger) (*amqp.Connection, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = time.Minute
	b.MaxElapsedTime = 0

	var conn *amqp.Connection
	try := 0
	op := func() error {
		try++
		c, err := amqp.Dial(url)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, sleep time.Duration) {
		logger.Warn("amqp dial failed",
			zap.Int("attempt", try),
			zap.Duration("sleep", sleep),
			zap.Error(err),
		)
	}

	retries := uint64(0)
	if attempts > 1 {
		retries = uint64(attempts - 1)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx), notify); err != nil {
		return nil, fmt.Errorf("connect to amqp after %d attempts: %w", try, err)
	}
	if try > 1 {
		logger.Info("amqp connected", zap.Int("attempt", try))
	}
	return conn, nil
}
