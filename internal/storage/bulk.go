package storage

import (
	"context"

	"github.com/jackc/pgx/v4"
)

// BulkSaveMessages copies a batch of messages into the messages table
// and bumps the room's last_message_at to the newest timestamp of the
// batch. Used by seeding tooling; the interactive path is SaveMessage.
func (s *Store) BulkSaveMessages(ctx context.Context, roomID string, messages []Message) error {
	s.logger.Debugf("Bulk inserting %d messages into room %s", len(messages), roomID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	columns := []string{"id", "room_id", "user_id", "text", "image_url", "ts"}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"messages"}, columns, copyFromMessages(messages))
	if err != nil {
		return err
	}

	sql := `update rooms
			   set last_message_at = (select max(ts) from messages where room_id = $1)
			 where slug = $1`
	if _, err = tx.Exec(ctx, sql, roomID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type messageBulk struct {
	rows []Message
	idx  int
}

func copyFromMessages(rows []Message) pgx.CopyFromSource {
	return &messageBulk{
		rows: rows,
		idx:  -1,
	}
}

func (mb *messageBulk) Next() bool {
	mb.idx++
	return mb.idx < len(mb.rows)
}

func (mb *messageBulk) Values() ([]interface{}, error) {
	m := mb.rows[mb.idx]
	return []interface{}{m.ID, m.RoomID, m.UserID, textOrNull(m.Text), textOrNull(m.ImageURL), m.Timestamp}, nil
}

func (mb *messageBulk) Err() error {
	return nil
}
