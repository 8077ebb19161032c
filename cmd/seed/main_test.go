package main

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/scanorder/api/internal/database"
	"go.uber.org/zap"
)

type fakeSeedStore struct {
	menu     map[string]database.MenuItem
	settings *database.Setting

	upsertFn func(ctx context.Context, arg database.UpsertMenuItemParams) (database.MenuItem, error)
}

func (f *fakeSeedStore) UpsertMenuItem(ctx context.Context, arg database.UpsertMenuItemParams) (database.MenuItem, error) {
	if f.upsertFn != nil {
		return f.upsertFn(ctx, arg)
	}
	m, ok := f.menu[arg.Name]
	if !ok {
		m = database.MenuItem{ID: uuid.New(), Name: arg.Name}
	}
	f.menu[arg.Name] = m
	return m, nil
}

func (f *fakeSeedStore) EnsureSettings(ctx context.Context) error {
	if f.settings == nil {
		f.settings = &database.Setting{OrdersEnabled: true, CardEnabled: true, CashEnabled: true}
	}
	return nil
}

func TestSeedKeepsExistingSettings(t *testing.T) {
	store := &fakeSeedStore{
		menu:     make(map[string]database.MenuItem),
		settings: &database.Setting{OrdersEnabled: false, CardEnabled: false, CashEnabled: true},
	}

	for run := 1; run <= 2; run++ {
		if err := seed(context.Background(), store, zap.NewNop()); err != nil {
			t.Fatalf("run %d: unexpected error: %v", run, err)
		}
	}

	if store.settings.OrdersEnabled || store.settings.CardEnabled || !store.settings.CashEnabled {
		t.Errorf("settings overwritten: got %+v", *store.settings)
	}
	if len(store.menu) != len(demoMenu) {
		t.Errorf("menu items: got %d, want %d", len(store.menu), len(demoMenu))
	}
}

func TestSeedCreatesMissingSettings(t *testing.T) {
	store := &fakeSeedStore{menu: make(map[string]database.MenuItem)}

	if err := seed(context.Background(), store, zap.NewNop()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.settings == nil || !store.settings.OrdersEnabled {
		t.Errorf("settings: got %+v", store.settings)
	}
}

func TestSeedStopsOnMenuError(t *testing.T) {
	boom := errors.New("boom")
	store := &fakeSeedStore{
		upsertFn: func(ctx context.Context, arg database.UpsertMenuItemParams) (database.MenuItem, error) {
			return database.MenuItem{}, boom
		},
	}

	if err := seed(context.Background(), store, zap.NewNop()); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if store.settings != nil {
		t.Error("settings should not be written after a menu failure")
	}
}
