package database

import (
	"context"

	"github.com/google/uuid"
)

func scanBell(row rowScanner) (BellNotification, error) {
	var b BellNotification
	err := row.Scan(&b.ID, &b.TableID, &b.Message, &b.Read, &b.CreatedAt)
	return b, err
}

type CreateBellNotificationParams struct {
	TableID int32
	Message string
}

const createBellNotification = `INSERT INTO bell_notifications (table_id, message)
VALUES ($1, $2)
RETURNING id, table_id, message, read, created_at`

func (q *Queries) CreateBellNotification(ctx context.Context, arg CreateBellNotificationParams) (BellNotification, error) {
	return scanBell(q.db.QueryRow(ctx, createBellNotification, arg.TableID, arg.Message))
}

const listUnreadBellNotifications = `SELECT id, table_id, message, read, created_at
FROM bell_notifications WHERE table_id = $1 AND NOT read
ORDER BY created_at`

func (q *Queries) ListUnreadBellNotifications(ctx context.Context, tableID int32) ([]BellNotification, error) {
	rows, err := q.db.Query(ctx, listUnreadBellNotifications, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BellNotification
	for rows.Next() {
		b, err := scanBell(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, b)
	}
	return items, rows.Err()
}

type MarkBellNotificationReadParams struct {
	ID      uuid.UUID
	TableID int32
}

const markBellNotificationRead = `UPDATE bell_notifications SET read = true
WHERE id = $1 AND table_id = $2
RETURNING id, table_id, message, read, created_at`

func (q *Queries) MarkBellNotificationRead(ctx context.Context, arg MarkBellNotificationReadParams) (BellNotification, error) {
	return scanBell(q.db.QueryRow(ctx, markBellNotificationRead, arg.ID, arg.TableID))
}
