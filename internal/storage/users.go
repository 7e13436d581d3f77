package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"
)

// maxIDAttempts bounds the collision-retry loop of fresh user id
// allocation.
const maxIDAttempts = 10

// GetOrCreateUser resolves the claimed id, creating the user record if
// it does not exist yet. Idempotent under concurrent claims of the same
// id: the insert is "on conflict do nothing" followed by a reread.
func (s *Store) GetOrCreateUser(ctx context.Context, id int64) (User, error) {
	u, err := s.UserByID(ctx, id)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, ErrUserNotExist) {
		return User{}, err
	}

	now := time.Now().UTC()
	sql := "insert into users (id, nickname, created_at) values ($1, null, $2) on conflict (id) do nothing"
	ct, err := s.db.Exec(ctx, sql, id, now)
	if err != nil {
		return User{}, err
	}
	if ct.RowsAffected() == 0 {
		// lost the race to a concurrent claim of the same id
		return s.UserByID(ctx, id)
	}

	s.logger.Debugf("Created user %d", id)

	return User{ID: id, CreatedAt: now}, nil
}

// CreateUser allocates a fresh user id from a high-entropy candidate
// generator, retrying on collision up to maxIDAttempts before reporting
// ErrIDExhausted
func (s *Store) CreateUser(ctx context.Context) (User, error) {
	sql := "insert into users (id, nickname, created_at) values ($1, null, $2) on conflict (id) do nothing"

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := newUserIDCandidate()
		now := time.Now().UTC()

		ct, err := s.db.Exec(ctx, sql, id, now)
		if err != nil {
			return User{}, err
		}
		if ct.RowsAffected() == 0 {
			s.logger.Debugf("User id %d collided, retrying (attempt %d)", id, attempt+1)
			continue
		}

		s.logger.Debugf("Created user %d", id)
		return User{ID: id, CreatedAt: now}, nil
	}

	return User{}, ErrIDExhausted
}

// UserByID returns the user with the given id or ErrUserNotExist
func (s *Store) UserByID(ctx context.Context, id int64) (User, error) {
	var (
		u        User
		nickname pgtype.Text
	)
	err := s.db.QueryRow(ctx, "select id, nickname, created_at from users where id = $1", id).
		Scan(&u.ID, &nickname, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrUserNotExist
		}
		return User{}, err
	}
	u.Nickname = nickname.String
	return u, nil
}

// UpdateNickname sets or clears (empty string) the user's nickname
func (s *Store) UpdateNickname(ctx context.Context, id int64, nickname string) error {
	s.logger.Debugf("Updating nickname of user %d", id)

	ct, err := s.db.Exec(ctx, "update users set nickname = $1 where id = $2", textOrNull(nickname), id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrUserNotExist
	}
	return nil
}
