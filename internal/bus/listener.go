package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/scanorder/api/internal/enum"
	"go.uber.org/zap"
)

// Channel is the Postgres notification channel written by notify_change().
const Channel = "table_changes"

// Publisher receives decoded change events. Satisfied by *Hub.
type Publisher interface {
	Publish(ev ChangeEvent)
}

// notificationConn is the part of *pgx.Conn the listener uses.
type notificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// PGListener holds a dedicated connection in LISTEN mode and forwards every
// notification to a Publisher. Notifications sent while it is reconnecting
// are lost; subscribers recover through their poll.
type PGListener struct {
	dsn    string
	pub    Publisher
	logger *zap.Logger

	connect    func(ctx context.Context, dsn string) (notificationConn, error)
	minBackoff time.Duration
	maxBackoff time.Duration
}

func NewPGListener(dsn string, pub Publisher, logger *zap.Logger) *PGListener {
	return &PGListener{
		dsn:    dsn,
		pub:    pub,
		logger: logger.Named("listener"),
		connect: func(ctx context.Context, dsn string) (notificationConn, error) {
			return pgx.Connect(ctx, dsn)
		},
		minBackoff: 500 * time.Millisecond,
		maxBackoff: 30 * time.Second,
	}
}

// Run listens until ctx is done, reconnecting with exponential backoff.
func (l *PGListener) Run(ctx context.Context) error {
	backoff := l.minBackoff
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return nil
		}
		l.logger.Warn("change feed connection lost", zap.Error(err), zap.Duration("retry_in", backoff))

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		if errors.Is(err, errListening) {
			backoff = l.minBackoff
		} else {
			backoff = min(backoff*2, l.maxBackoff)
		}
	}
}

// errListening marks a failure after LISTEN succeeded, which resets the backoff.
var errListening = errors.New("listening connection failed")

func (l *PGListener) listen(ctx context.Context) error {
	conn, err := l.connect(ctx, l.dsn)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.WithoutCancel(ctx))

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{Channel}.Sanitize()); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("listening for changes", zap.String("channel", Channel))

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("%w: %w", errListening, err)
		}
		ev, err := Decode([]byte(n.Payload))
		if err != nil {
			l.logger.Warn("skipping malformed change notification", zap.Error(err))
			continue
		}
		l.pub.Publish(ev)
	}
}

// Decode parses a notify_change() payload.
func Decode(payload []byte) (ChangeEvent, error) {
	var ev ChangeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return ChangeEvent{}, fmt.Errorf("decode change event: %w", err)
	}
	if ev.Table == "" {
		return ChangeEvent{}, errors.New("decode change event: missing table")
	}
	switch ev.Op {
	case enum.OpInsert, enum.OpUpdate, enum.OpDelete:
	default:
		return ChangeEvent{}, fmt.Errorf("decode change event: unknown op %q", ev.Op)
	}
	return ev, nil
}
