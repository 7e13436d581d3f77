package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

// CreateRoom inserts a new room record. Slug uniqueness is enforced by
// the primary key; callers retry with a fresh slug on ErrRoomExists.
func (s *Store) CreateRoom(ctx context.Context, r Room) (Room, error) {
	s.logger.Debugf("Creating room %s (%q)", r.Slug, r.Title)

	if r.Title == "" {
		r.Title = r.Slug
	}

	sql := `insert into rooms (slug, title, created_at, last_message_at, is_public, creator_id)
			values ($1, $2, $3, $3, $4, $5)`
	_, err := s.db.Exec(ctx, sql, r.Slug, r.Title, r.CreatedAt, r.IsPublic, int64OrNull(r.CreatorID))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return Room{}, ErrRoomExists
		}
		return Room{}, err
	}

	r.LastMessageAt = r.CreatedAt
	return r, nil
}

const roomColumns = "slug, title, created_at, last_message_at, is_public, creator_id"

// RoomBySlug returns the room with the given slug or ErrRoomNotExist
func (s *Store) RoomBySlug(ctx context.Context, slug string) (Room, error) {
	sql := "select " + roomColumns + " from rooms where slug = $1"

	r, err := scanRoom(s.db.QueryRow(ctx, sql, slug))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Room{}, ErrRoomNotExist
		}
		return Room{}, err
	}
	return r, nil
}

// AllRooms lists public rooms ordered by most recent activity
func (s *Store) AllRooms(ctx context.Context, limit int) ([]Room, error) {
	sql := `select ` + roomColumns + `
			  from rooms
			 where is_public
			 order by last_message_at desc, created_at desc
			 limit $1`

	rows, err := s.db.Query(ctx, sql, limit)
	if err != nil {
		return nil, err
	}
	return scanRooms(rows)
}

// UserRooms lists rooms the user created or has sent messages to,
// public or not, ordered by most recent activity
func (s *Store) UserRooms(ctx context.Context, userID int64, limit int) ([]Room, error) {
	sql := `select distinct r.slug, r.title, r.created_at, r.last_message_at, r.is_public, r.creator_id
			  from rooms r
			  left join messages m on m.room_id = r.slug
			 where r.creator_id = $1 or m.user_id = $1
			 order by r.last_message_at desc, r.created_at desc
			 limit $2`

	rows, err := s.db.Query(ctx, sql, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanRooms(rows)
}

// RenameRoom updates the room title. Creator checks happen at the
// handler, with the room already loaded.
func (s *Store) RenameRoom(ctx context.Context, slug, title string) error {
	s.logger.Debugf("Renaming room %s to %q", slug, title)

	ct, err := s.db.Exec(ctx, "update rooms set title = $1 where slug = $2", title, slug)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrRoomNotExist
	}
	return nil
}

// DeleteRoom removes the room and cascades over its messages and their
// likes in one transaction
func (s *Store) DeleteRoom(ctx context.Context, slug string) error {
	s.logger.Debugf("Deleting room %s", slug)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(context.Background())

	_, err = tx.Exec(ctx, "delete from likes where message_id in (select id from messages where room_id = $1)", slug)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx, "delete from messages where room_id = $1", slug)
	if err != nil {
		return err
	}
	ct, err := tx.Exec(ctx, "delete from rooms where slug = $1", slug)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrRoomNotExist
	}

	return tx.Commit(ctx)
}

func scanRooms(rows pgx.Rows) ([]Room, error) {
	defer rows.Close()

	var rooms []Room
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return rooms, nil
}

func scanRoom(row pgx.Row) (Room, error) {
	var (
		r         Room
		title     pgtype.Text
		lastMsgAt pgtype.Timestamptz
		creatorID pgtype.Int8
	)
	err := row.Scan(&r.Slug, &title, &r.CreatedAt, &lastMsgAt, &r.IsPublic, &creatorID)
	if err != nil {
		return Room{}, err
	}
	r.Title = title.String
	r.LastMessageAt = lastMsgAt.Time
	r.CreatorID = creatorID.Int
	return r, nil
}

func int64OrNull(v int64) pgtype.Int8 {
	if v == 0 {
		return pgtype.Int8{Status: pgtype.Null}
	}
	return pgtype.Int8{Int: v, Status: pgtype.Present}
}
