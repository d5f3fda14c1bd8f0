// Package chat validates, rate limits and stores stream chat messages, and feeds new messages
// to live subscribers by polling the database.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/time/rate"

	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
)

// MaxMessageRunes bounds a single message.
const MaxMessageRunes = 500

var (
	ErrEmpty       = errors.New("message is empty")
	ErrTooLong     = errors.New("message exceeds 500 characters")
	ErrRateLimited = errors.New("sending messages too quickly")
)

// Store is the persistence the service needs.
type Store interface {
	ListChatMessages(ctx context.Context, streamID string, q store.ChatQuery) ([]store.ChatMessage, error)
	InsertChatMessage(ctx context.Context, streamID, sender, text string) (*store.ChatMessage, error)
}

// Service handles chat for all streams.
type Service struct {
	store Store

	// PollInterval is how often Follow checks for new messages.
	PollInterval time.Duration

	limit rate.Limit
	burst int

	mu       sync.Mutex
	senders  map[string]*sender
	inserted int
	now      func() time.Time
}

type sender struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewService builds a Service allowing each wallet perSec messages per second with burst.
func NewService(s Store, perSec float64, burst int) *Service {
	if perSec <= 0 {
		perSec = 1
	}
	if burst <= 0 {
		burst = 5
	}
	return &Service{
		store:        s,
		PollInterval: time.Second,
		limit:        rate.Limit(perSec),
		burst:        burst,
		senders:      map[string]*sender{},
		now:          time.Now,
	}
}

// Validate trims text and enforces the length bounds.
func Validate(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(text) > MaxMessageRunes {
		return "", ErrTooLong
	}
	return text, nil
}

// Post validates and stores a message from addr.
func (s *Service) Post(ctx context.Context, streamID, addr, text string) (*store.ChatMessage, error) {
	text, err := Validate(text)
	if err != nil {
		return nil, err
	}
	if !s.allow(addr) {
		return nil, ErrRateLimited
	}
	m, err := s.store.InsertChatMessage(ctx, streamID, addr, text)
	if err != nil {
		return nil, err
	}
	telemetry.IncChat()
	return m, nil
}

// List returns a page of history, oldest first.
func (s *Service) List(ctx context.Context, streamID string, q store.ChatQuery) ([]store.ChatMessage, error) {
	return s.store.ListChatMessages(ctx, streamID, q)
}

// Follow calls fn for every message posted after afterID until ctx ends or fn fails. With
// afterID zero it starts from the newest existing message.
func (s *Service) Follow(ctx context.Context, streamID string, afterID int64, fn func(store.ChatMessage) error) error {
	if afterID <= 0 {
		latest, err := s.store.ListChatMessages(ctx, streamID, store.ChatQuery{Limit: 1})
		if err != nil {
			return err
		}
		if len(latest) > 0 {
			afterID = latest[len(latest)-1].ID
		}
	}

	t := time.NewTicker(s.PollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		for {
			msgs, err := s.store.ListChatMessages(ctx, streamID, store.ChatQuery{AfterID: afterID, Limit: 100})
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			for _, m := range msgs {
				if err := fn(m); err != nil {
					return err
				}
				afterID = m.ID
			}
			if len(msgs) < 100 {
				break
			}
		}
	}
}

// allow applies the per-wallet limiter, dropping limiters idle for ten minutes.
func (s *Service) allow(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	snd, ok := s.senders[addr]
	if !ok {
		snd = &sender{lim: rate.NewLimiter(s.limit, s.burst)}
		s.senders[addr] = snd
	}
	snd.seen = now

	s.inserted++
	if s.inserted%256 == 0 {
		for k, v := range s.senders {
			if now.Sub(v.seen) > 10*time.Minute {
				delete(s.senders, k)
			}
		}
	}
	return snd.lim.AllowN(now, 1)
}
