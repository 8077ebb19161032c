package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/scanorder/api/internal/database"
)

// SettingsStore defines the DB methods needed for persisted toggles.
type SettingsStore interface {
	GetSettings(ctx context.Context) (database.Setting, error)
	UpdateSettings(ctx context.Context, arg database.UpdateSettingsParams) (database.Setting, error)
}

// defaultSettings applies when the settings row has not been written yet.
var defaultSettings = database.Setting{OrdersEnabled: true, CardEnabled: true, CashEnabled: true}

// SettingsService loads and saves the single-row business toggles. Every
// instance reads the same row, so a change is seen by all of them.
type SettingsService struct {
	store SettingsStore
}

func NewSettingsService(store SettingsStore) *SettingsService {
	return &SettingsService{store: store}
}

func (s *SettingsService) Load(ctx context.Context) (database.Setting, error) {
	st, err := s.store.GetSettings(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return defaultSettings, nil
		}
		return database.Setting{}, fmt.Errorf("get settings: %w", err)
	}
	return st, nil
}

func (s *SettingsService) Save(ctx context.Context, arg database.UpdateSettingsParams) (database.Setting, error) {
	st, err := s.store.UpdateSettings(ctx, arg)
	if err != nil {
		return database.Setting{}, fmt.Errorf("update settings: %w", err)
	}
	return st, nil
}
