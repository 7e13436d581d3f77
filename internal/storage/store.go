package storage

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"

	"fastt-chat-server/internal/storage/zapadapter"
)

var (
	ErrRoomExists      = errors.New("room already exists")
	ErrRoomNotExist    = errors.New("room does not exist")
	ErrUserNotExist    = errors.New("user does not exist")
	ErrMessageExists   = errors.New("message id already exists")
	ErrMessageNotExist = errors.New("message does not exist")
	ErrIDExhausted     = errors.New("user id allocation attempts exhausted")
)

// schema is applied idempotently on startup. Messages are ordered by
// (ts, seq): ts is the pagination cursor, seq fixes insertion order
// between equal timestamps.
const schema = `
create table if not exists users (
	id         bigint primary key,
	nickname   text,
	created_at timestamptz not null
);

create table if not exists rooms (
	slug            text primary key,
	title           text,
	created_at      timestamptz not null,
	last_message_at timestamptz,
	is_public       boolean not null default true,
	creator_id      bigint
);

create table if not exists messages (
	id        text primary key,
	room_id   text not null,
	user_id   bigint not null,
	text      text,
	image_url text,
	ts        timestamptz not null,
	seq       bigserial
);

create index if not exists idx_messages_room_ts on messages (room_id, ts desc);
create index if not exists idx_messages_user on messages (user_id);

create table if not exists likes (
	message_id text not null references messages (id),
	user_id    bigint not null,
	ts         timestamptz not null,
	primary key (message_id, user_id)
);
`

// Store defines fields used in db interaction processes
type Store struct {
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New connects a pgxpool.Pool with the provided zap logger attached via
// zapadapter, applies the schema and returns a Store instance
func New(ctx context.Context, logger *zap.SugaredLogger, cfg Config, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, err
	}

	return &Store{
		logger: logger,
		db:     pool,
	}, nil
}

// Close releases all pool connections
func (s *Store) Close() {
	s.db.Close()
}

// SaveMessage inserts a new message and bumps the room's last_message_at
// in the same transaction. The write is durable before the caller gets
// control back, so broadcast never precedes persistence.
func (s *Store) SaveMessage(ctx context.Context, m Message) error {
	s.logger.Debugf("Saving message %s to room %s", m.ID, m.RoomID)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions
	defer tx.Rollback(context.Background())

	sql := "insert into messages (id, room_id, user_id, text, image_url, ts) values ($1, $2, $3, $4, $5, $6)"
	_, err = tx.Exec(ctx, sql, m.ID, m.RoomID, m.UserID, textOrNull(m.Text), textOrNull(m.ImageURL), m.Timestamp)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrMessageExists
		}
		return err
	}

	_, err = tx.Exec(ctx, "update rooms set last_message_at = $1 where slug = $2", m.Timestamp, m.RoomID)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const messageColumns = "m.id, m.room_id, m.user_id, u.nickname, m.text, m.image_url, m.ts"

// RecentMessages returns up to limit newest messages of a room in
// ascending timestamp order, oldest first
func (s *Store) RecentMessages(ctx context.Context, roomID string, limit int) ([]Message, error) {
	s.logger.Debugf("Retrieving %d recent messages for room %s", limit, roomID)

	sql := `with recent as (
				select ` + messageColumns + `, m.seq
				  from messages m
				  left join users u on u.id = m.user_id
				 where m.room_id = $1
				 order by m.ts desc, m.seq desc
				 limit $2
			)
			select id, room_id, user_id, nickname, text, image_url, ts
			  from recent
			 order by ts asc, seq asc`

	rows, err := s.db.Query(ctx, sql, roomID, limit)
	if err != nil {
		return nil, err
	}

	return scanMessages(rows)
}

// OlderMessages returns up to limit messages strictly older than before,
// ascending. An empty result is the only "history exhausted" signal.
func (s *Store) OlderMessages(ctx context.Context, roomID string, before time.Time, limit int) ([]Message, error) {
	s.logger.Debugf("Retrieving %d messages before %s for room %s", limit, before, roomID)

	sql := `with older as (
				select ` + messageColumns + `, m.seq
				  from messages m
				  left join users u on u.id = m.user_id
				 where m.room_id = $1 and m.ts < $2
				 order by m.ts desc, m.seq desc
				 limit $3
			)
			select id, room_id, user_id, nickname, text, image_url, ts
			  from older
			 order by ts asc, seq asc`

	rows, err := s.db.Query(ctx, sql, roomID, before, limit)
	if err != nil {
		return nil, err
	}

	return scanMessages(rows)
}

// MessageByID performs a point lookup
func (s *Store) MessageByID(ctx context.Context, id string) (Message, error) {
	sql := `select ` + messageColumns + `
			  from messages m
			  left join users u on u.id = m.user_id
			 where m.id = $1`

	m, err := scanMessage(s.db.QueryRow(ctx, sql, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Message{}, ErrMessageNotExist
		}
		return Message{}, err
	}
	return m, nil
}

// MessagesAround returns a context window centered on the target
// message: up to before messages at-or-before its timestamp (the target
// included) plus up to after messages strictly newer, merged, deduped
// by id and sorted ascending.
func (s *Store) MessagesAround(ctx context.Context, id string, before, after int) ([]Message, error) {
	target, err := s.MessageByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sqlBefore := `with older as (
					select ` + messageColumns + `, m.seq
					  from messages m
					  left join users u on u.id = m.user_id
					 where m.room_id = $1 and m.ts <= $2
					 order by m.ts desc, m.seq desc
					 limit $3
				)
				select id, room_id, user_id, nickname, text, image_url, ts
				  from older
				 order by ts asc, seq asc`

	rows, err := s.db.Query(ctx, sqlBefore, target.RoomID, target.Timestamp, before+1)
	if err != nil {
		return nil, err
	}
	beforeRows, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	sqlAfter := `select ` + messageColumns + `
				   from messages m
				   left join users u on u.id = m.user_id
				  where m.room_id = $1 and m.ts > $2
				  order by m.ts asc, m.seq asc
				  limit $3`

	rows, err = s.db.Query(ctx, sqlAfter, target.RoomID, target.Timestamp, after)
	if err != nil {
		return nil, err
	}
	afterRows, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}

	merged := make([]Message, 0, len(beforeRows)+len(afterRows)+1)
	seen := make(map[string]bool, cap(merged))
	hasTarget := false
	for _, m := range append(beforeRows, afterRows...) {
		if seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		if m.ID == target.ID {
			hasTarget = true
		}
		merged = append(merged, m)
	}
	if !hasTarget {
		merged = append(merged, target)
		sort.SliceStable(merged, func(i, j int) bool {
			return merged[i].Timestamp.Before(merged[j].Timestamp)
		})
	}

	return merged, nil
}

func scanMessages(rows pgx.Rows) ([]Message, error) {
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return messages, nil
}

func scanMessage(row pgx.Row) (Message, error) {
	var (
		m        Message
		nickname pgtype.Text
		text     pgtype.Text
		imageURL pgtype.Text
	)
	err := row.Scan(&m.ID, &m.RoomID, &m.UserID, &nickname, &text, &imageURL, &m.Timestamp)
	if err != nil {
		return Message{}, err
	}
	m.Username = nickname.String
	m.Text = text.String
	m.ImageURL = imageURL.String
	return m, nil
}

func textOrNull(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Status: pgtype.Null}
	}
	return pgtype.Text{String: s, Status: pgtype.Present}
}
