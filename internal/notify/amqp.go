package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// Exchange is the fanout exchange status updates are published to.
const Exchange = "notifications_fanout"

// StatusUpdateMessage is the broker payload for one order transition.
type StatusUpdateMessage struct {
	ShortID   string    `json:"short_id"`
	OrderID   string    `json:"order_id"`
	TableID   int32     `json:"table_id"`
	Kind      string    `json:"kind"`
	OldStatus string    `json:"old_status"`
	NewStatus string    `json:"new_status"`
	ChangedAt time.Time `json:"changed_at"`
}

// publisher is the part of *amqp.Channel the sink uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPSink publishes status updates to a RabbitMQ fanout exchange for
// external consumers.
type AMQPSink struct {
	ch      publisher
	closers []func() error
	timeout time.Duration
	logger  *zap.Logger
}

// DialAMQP connects to the broker and declares the exchange.
func DialAMQP(url string, logger *zap.Logger) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	err = ch.ExchangeDeclare(
		Exchange, // name
		"fanout", // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	logger.Info("connected to broker", zap.String("exchange", Exchange))

	s := newAMQPSink(ch, logger)
	s.closers = []func() error{ch.Close, conn.Close}
	return s, nil
}

func newAMQPSink(ch publisher, logger *zap.Logger) *AMQPSink {
	return &AMQPSink{ch: ch, timeout: 5 * time.Second, logger: logger.Named("amqp")}
}

func (s *AMQPSink) Name() string { return "amqp" }

func (s *AMQPSink) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(StatusUpdateMessage{
		ShortID:   n.ShortID,
		OrderID:   n.OrderID.String(),
		TableID:   n.TableID,
		Kind:      n.Kind,
		OldStatus: string(n.OldStatus),
		NewStatus: string(n.NewStatus),
		ChangedAt: n.ChangedAt,
	})
	if err != nil {
		return fmt.Errorf("marshal status update: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	err = s.ch.PublishWithContext(ctx,
		Exchange, // exchange
		"",       // routing key
		false,    // mandatory
		false,    // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    n.ChangedAt,
		})
	if err != nil {
		return fmt.Errorf("publish status update: %w", err)
	}
	s.logger.Debug("status update published",
		zap.String("short_id", n.ShortID),
		zap.String("old_status", string(n.OldStatus)),
		zap.String("new_status", string(n.NewStatus)))
	return nil
}

// Close releases the channel and connection opened by DialAMQP.
func (s *AMQPSink) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
