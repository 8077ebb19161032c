package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/scanorder/api/internal/database"
)

var (
	ErrInvalidTable = errors.New("table_id must be > 0")
	ErrBellNotFound = errors.New("bell notification not found")
)

const defaultBellMessage = "Votre commande est prête"

// BellStore defines the DB methods needed for table bell pings.
type BellStore interface {
	CreateBellNotification(ctx context.Context, arg database.CreateBellNotificationParams) (database.BellNotification, error)
	ListUnreadBellNotifications(ctx context.Context, tableID int32) ([]database.BellNotification, error)
	MarkBellNotificationRead(ctx context.Context, arg database.MarkBellNotificationReadParams) (database.BellNotification, error)
}

// BellService sends staff-to-table pings. They carry no order state.
type BellService struct {
	store BellStore
}

func NewBellService(store BellStore) *BellService {
	return &BellService{store: store}
}

func (s *BellService) Ring(ctx context.Context, tableID int32, message string) (database.BellNotification, error) {
	if tableID <= 0 {
		return database.BellNotification{}, ErrInvalidTable
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = defaultBellMessage
	}
	b, err := s.store.CreateBellNotification(ctx, database.CreateBellNotificationParams{
		TableID: tableID,
		Message: message,
	})
	if err != nil {
		return database.BellNotification{}, fmt.Errorf("create bell notification: %w", err)
	}
	return b, nil
}

func (s *BellService) Unread(ctx context.Context, tableID int32) ([]database.BellNotification, error) {
	if tableID <= 0 {
		return nil, ErrInvalidTable
	}
	items, err := s.store.ListUnreadBellNotifications(ctx, tableID)
	if err != nil {
		return nil, fmt.Errorf("list bell notifications: %w", err)
	}
	return items, nil
}

func (s *BellService) MarkRead(ctx context.Context, tableID int32, id uuid.UUID) (database.BellNotification, error) {
	b, err := s.store.MarkBellNotificationRead(ctx, database.MarkBellNotificationReadParams{ID: id, TableID: tableID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return database.BellNotification{}, ErrBellNotFound
		}
		return database.BellNotification{}, fmt.Errorf("mark bell notification read: %w", err)
	}
	return b, nil
}
