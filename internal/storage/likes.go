package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
)

// ToggleLike flips the like of a user on a message: if present it is
// removed and liked=false reported, otherwise it is inserted and
// liked=true reported, together with the resulting count. Applying the
// toggle twice restores the original state.
func (s *Store) ToggleLike(ctx context.Context, messageID string, userID int64) (liked bool, count int, err error) {
	s.logger.Debugf("Toggling like of user %d on message %s", userID, messageID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, 0, err
	}
	defer tx.Rollback(context.Background())

	ct, err := tx.Exec(ctx, "delete from likes where message_id = $1 and user_id = $2", messageID, userID)
	if err != nil {
		return false, 0, err
	}

	if ct.RowsAffected() == 0 {
		sql := "insert into likes (message_id, user_id, ts) values ($1, $2, $3)"
		_, err = tx.Exec(ctx, sql, messageID, userID, time.Now().UTC())
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ForeignKeyViolation {
				return false, 0, ErrMessageNotExist
			}
			return false, 0, err
		}
		liked = true
	}

	err = tx.QueryRow(ctx, "select count(*) from likes where message_id = $1", messageID).Scan(&count)
	if err != nil {
		return false, 0, err
	}

	return liked, count, tx.Commit(ctx)
}

// LikeCounts returns the like count per message id for the given batch.
// Ids without likes are absent from the result map.
func (s *Store) LikeCounts(ctx context.Context, messageIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(messageIDs))
	if len(messageIDs) == 0 {
		return counts, nil
	}

	sql := "select message_id, count(*) from likes where message_id = any($1) group by message_id"
	rows, err := s.db.Query(ctx, sql, messageIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return counts, nil
}

// UserLikedMessages returns the subset of the given message ids the
// user has liked
func (s *Store) UserLikedMessages(ctx context.Context, messageIDs []string, userID int64) ([]string, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	sql := "select message_id from likes where message_id = any($1) and user_id = $2"
	rows, err := s.db.Query(ctx, sql, messageIDs, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var liked []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		liked = append(liked, id)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return liked, nil
}
