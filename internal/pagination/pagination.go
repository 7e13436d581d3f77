// Package pagination translates scroll-position semantics into message
// store queries: recent windows, older pages behind a timestamp cursor
// and context windows around a target message.
package pagination

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastt-chat-server/internal/storage"
)

const (
	// InitialLimit is the window size of an initial room load. A full
	// window only means more history may exist; the next older fetch
	// settles it by coming back short or empty.
	InitialLimit = 30

	// OlderLimit is the default page size of a backward scroll.
	OlderLimit = 30

	// ContextBefore and ContextAfter size the deep-link window around a
	// target message.
	ContextBefore = 25
	ContextAfter  = 25

	// MaxLimit caps any caller-requested window size.
	MaxLimit = 50
)

// ErrFetchInFlight reports a suppressed older-page fetch: one is
// already outstanding for the room and concurrent triggers are no-ops.
var ErrFetchInFlight = errors.New("older page fetch already in flight")

// Store is the message store surface the engine reads from
type Store interface {
	RecentMessages(ctx context.Context, roomID string, limit int) ([]storage.Message, error)
	OlderMessages(ctx context.Context, roomID string, before time.Time, limit int) ([]storage.Message, error)
	MessagesAround(ctx context.Context, id string, before, after int) ([]storage.Message, error)
	LikeCounts(ctx context.Context, messageIDs []string) (map[string]int, error)
}

// Window is a loaded page of messages; TargetID marks the deep-link
// target of a context window.
type Window struct {
	Messages []storage.Message `json:"messages"`
	TargetID string            `json:"targetMessageId,omitempty"`
}

// Engine computes message windows with like counts attached
type Engine struct {
	logger *zap.SugaredLogger
	store  Store

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(logger *zap.SugaredLogger, store Store) *Engine {
	return &Engine{
		logger:   logger,
		store:    store,
		inflight: make(map[string]struct{}),
	}
}

// Recent returns the newest window of a room, ascending, with like
// counts attached
func (e *Engine) Recent(ctx context.Context, roomID string, limit int) ([]storage.Message, error) {
	messages, err := e.store.RecentMessages(ctx, roomID, ClampLimit(limit, InitialLimit))
	if err != nil {
		return nil, err
	}
	return e.withLikeCounts(ctx, messages)
}

// Older returns the page strictly before the cursor. At most one older
// fetch per room is in flight: triggers arriving while one is
// outstanding fail fast with ErrFetchInFlight and the outstanding fetch
// is never cancelled.
func (e *Engine) Older(ctx context.Context, roomID string, before time.Time, limit int) ([]storage.Message, error) {
	e.mu.Lock()
	if _, busy := e.inflight[roomID]; busy {
		e.mu.Unlock()
		e.logger.Debugf("Suppressing duplicate older fetch for room %s", roomID)
		return nil, ErrFetchInFlight
	}
	e.inflight[roomID] = struct{}{}
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		delete(e.inflight, roomID)
		e.mu.Unlock()
	}()

	messages, err := e.store.OlderMessages(ctx, roomID, before, ClampLimit(limit, OlderLimit))
	if err != nil {
		return nil, err
	}
	return e.withLikeCounts(ctx, messages)
}

// Around returns the deep-link context window for a message. The result
// is treated like an initial load with the target marked; history may
// extend past both ends.
func (e *Engine) Around(ctx context.Context, messageID string, before, after int) (Window, error) {
	messages, err := e.store.MessagesAround(ctx, messageID, ClampLimit(before, ContextBefore), ClampLimit(after, ContextAfter))
	if err != nil {
		return Window{}, err
	}
	messages, err = e.withLikeCounts(ctx, messages)
	if err != nil {
		return Window{}, err
	}
	return Window{Messages: messages, TargetID: messageID}, nil
}

// MergeOlder prepends an older page to a loaded window, dropping any
// message id the window already holds. Both inputs are ascending and so
// is the result.
func MergeOlder(window, page []storage.Message) []storage.Message {
	if len(page) == 0 {
		return window
	}

	present := make(map[string]bool, len(window))
	for _, m := range window {
		present[m.ID] = true
	}

	merged := make([]storage.Message, 0, len(page)+len(window))
	for _, m := range page {
		if !present[m.ID] {
			merged = append(merged, m)
		}
	}
	return append(merged, window...)
}

// ClampLimit resolves a caller-requested window size against the
// default and the hard cap
func ClampLimit(requested, fallback int) int {
	if requested <= 0 {
		return fallback
	}
	if requested > MaxLimit {
		return MaxLimit
	}
	return requested
}

func (e *Engine) withLikeCounts(ctx context.Context, messages []storage.Message) ([]storage.Message, error) {
	if len(messages) == 0 {
		return messages, nil
	}

	ids := make([]string, len(messages))
	for i, m := range messages {
		ids[i] = m.ID
	}

	counts, err := e.store.LikeCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		messages[i].LikeCount = counts[messages[i].ID]
	}
	return messages, nil
}
