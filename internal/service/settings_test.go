package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/scanorder/api/internal/database"
)

func TestSettings_DefaultsWhenMissing(t *testing.T) {
	svc := NewSettingsService(newMemStore())
	s, err := svc.Load(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !s.OrdersEnabled || !s.CardEnabled || !s.CashEnabled {
		t.Errorf("expected everything enabled, got %+v", s)
	}
}

func TestSettings_SaveThenLoad(t *testing.T) {
	store := newMemStore()
	svc := NewSettingsService(store)

	if _, err := svc.Save(context.Background(), database.UpdateSettingsParams{OrdersEnabled: true, CashEnabled: true}); err != nil {
		t.Fatalf("save: %v", err)
	}
	// A second service over the same store sees the change.
	s, err := NewSettingsService(store).Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if s.CardEnabled || !s.CashEnabled {
		t.Errorf("got %+v", s)
	}
}

// --- Mock BellStore ---

type mockBellStore struct {
	createFn   func(ctx context.Context, arg database.CreateBellNotificationParams) (database.BellNotification, error)
	listFn     func(ctx context.Context, tableID int32) ([]database.BellNotification, error)
	markReadFn func(ctx context.Context, arg database.MarkBellNotificationReadParams) (database.BellNotification, error)
}

func (m *mockBellStore) CreateBellNotification(ctx context.Context, arg database.CreateBellNotificationParams) (database.BellNotification, error) {
	return m.createFn(ctx, arg)
}

func (m *mockBellStore) ListUnreadBellNotifications(ctx context.Context, tableID int32) ([]database.BellNotification, error) {
	return m.listFn(ctx, tableID)
}

func (m *mockBellStore) MarkBellNotificationRead(ctx context.Context, arg database.MarkBellNotificationReadParams) (database.BellNotification, error) {
	return m.markReadFn(ctx, arg)
}

func TestBell_RingDefaultsMessage(t *testing.T) {
	var got database.CreateBellNotificationParams
	svc := NewBellService(&mockBellStore{
		createFn: func(ctx context.Context, arg database.CreateBellNotificationParams) (database.BellNotification, error) {
			got = arg
			return database.BellNotification{ID: uuid.New(), TableID: arg.TableID, Message: arg.Message}, nil
		},
	})

	if _, err := svc.Ring(context.Background(), 4, "   "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.TableID != 4 || got.Message != defaultBellMessage {
		t.Errorf("got %+v", got)
	}
	if _, err := svc.Ring(context.Background(), 0, "hi"); !errors.Is(err, ErrInvalidTable) {
		t.Errorf("expected ErrInvalidTable, got %v", err)
	}
}

func TestBell_RingRejectsMissingTable(t *testing.T) {
	svc := NewBellService(&mockBellStore{})
	if _, err := svc.Ring(context.Background(), 0, "Ding"); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("got %v, want ErrInvalidTable", err)
	}
	if _, err := svc.Unread(context.Background(), -1); !errors.Is(err, ErrInvalidTable) {
		t.Fatalf("unread: got %v, want ErrInvalidTable", err)
	}
}

func TestBell_MarkReadScopedToTable(t *testing.T) {
	bellID := uuid.New()
	svc := NewBellService(&mockBellStore{
		markReadFn: func(ctx context.Context, arg database.MarkBellNotificationReadParams) (database.BellNotification, error) {
			if arg.ID != bellID || arg.TableID != 3 {
				return database.BellNotification{}, pgx.ErrNoRows
			}
			return database.BellNotification{ID: arg.ID, TableID: arg.TableID, Read: true}, nil
		},
	})

	b, err := svc.MarkRead(context.Background(), 3, bellID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if !b.Read {
		t.Error("bell not marked read")
	}

	if _, err := svc.MarkRead(context.Background(), 4, bellID); !errors.Is(err, ErrBellNotFound) {
		t.Fatalf("other table: got %v, want ErrBellNotFound", err)
	}
}
