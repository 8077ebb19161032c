package database

import "context"

const getSettings = `SELECT orders_enabled, card_enabled, cash_enabled, updated_at
FROM settings WHERE id = 1`

func (q *Queries) GetSettings(ctx context.Context) (Setting, error) {
	var s Setting
	err := q.db.QueryRow(ctx, getSettings).Scan(&s.OrdersEnabled, &s.CardEnabled, &s.CashEnabled, &s.UpdatedAt)
	return s, err
}

type UpdateSettingsParams struct {
	OrdersEnabled bool
	CardEnabled   bool
	CashEnabled   bool
}

const updateSettings = `INSERT INTO settings (id, orders_enabled, card_enabled, cash_enabled, updated_at)
VALUES (1, $1, $2, $3, now())
ON CONFLICT (id) DO UPDATE SET orders_enabled = EXCLUDED.orders_enabled,
	card_enabled = EXCLUDED.card_enabled, cash_enabled = EXCLUDED.cash_enabled, updated_at = now()
RETURNING orders_enabled, card_enabled, cash_enabled, updated_at`

func (q *Queries) UpdateSettings(ctx context.Context, arg UpdateSettingsParams) (Setting, error) {
	var s Setting
	err := q.db.QueryRow(ctx, updateSettings, arg.OrdersEnabled, arg.CardEnabled, arg.CashEnabled).
		Scan(&s.OrdersEnabled, &s.CardEnabled, &s.CashEnabled, &s.UpdatedAt)
	return s, err
}

const ensureSettings = `INSERT INTO settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`

// EnsureSettings creates the settings row with its defaults when it is
// missing and leaves an existing row untouched.
func (q *Queries) EnsureSettings(ctx context.Context) error {
	_, err := q.db.Exec(ctx, ensureSettings)
	return err
}
