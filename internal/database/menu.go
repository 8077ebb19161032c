package database

import (
	"context"

	"github.com/google/uuid"
)

const menuItemColumns = `id, name, description, price, category, available`

func scanMenuItem(row rowScanner) (MenuItem, error) {
	var m MenuItem
	err := row.Scan(&m.ID, &m.Name, &m.Description, &m.Price, &m.Category, &m.Available)
	return m, err
}

const listAvailableMenuItems = `SELECT ` + menuItemColumns + ` FROM menu_items
WHERE available ORDER BY category, name`

func (q *Queries) ListAvailableMenuItems(ctx context.Context) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, listAvailableMenuItems)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// GetAvailableMenuItems returns the subset of ids that exist and are available.
const getAvailableMenuItems = `SELECT ` + menuItemColumns + ` FROM menu_items
WHERE id = ANY($1::uuid[]) AND available`

func (q *Queries) GetAvailableMenuItems(ctx context.Context, ids []uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, getAvailableMenuItems, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// GetMenuItemsByIDs resolves ids regardless of availability, for orders
// whose items have since been taken off the menu.
const getMenuItemsByIDs = `SELECT ` + menuItemColumns + ` FROM menu_items
WHERE id = ANY($1::uuid[])`

func (q *Queries) GetMenuItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]MenuItem, error) {
	rows, err := q.db.Query(ctx, getMenuItemsByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []MenuItem
	for rows.Next() {
		m, err := scanMenuItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

type UpsertMenuItemParams struct {
	Name        string
	Description string
	Price       string
	Category    string
}

const upsertMenuItem = `INSERT INTO menu_items (name, description, price, category, available)
VALUES ($1, $2, $3::numeric, $4, true)
ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description, price = EXCLUDED.price,
	category = EXCLUDED.category, available = true
RETURNING ` + menuItemColumns

func (q *Queries) UpsertMenuItem(ctx context.Context, arg UpsertMenuItemParams) (MenuItem, error) {
	return scanMenuItem(q.db.QueryRow(ctx, upsertMenuItem, arg.Name, arg.Description, arg.Price, arg.Category))
}
