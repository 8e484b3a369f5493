package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/SmarTanom/sessionguard/kv"
)

var (
	// ErrNotFound is returned by Load when no complete session is stored.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt is returned when the stored user record cannot be decoded.
	ErrCorrupt = errors.New("session record corrupt")
	// ErrUnavailable wraps storage backend failures.
	ErrUnavailable = errors.New("session storage unavailable")
)

// Store reads and writes the two session keys.
type Store struct {
	kv       kv.Store
	userKey  string
	tokenKey string
}

// NewStore creates a session [Store] over backend using the given key names.
func NewStore(backend kv.Store, userKey, tokenKey string) *Store {
	return &Store{
		kv:       backend,
		userKey:  userKey,
		tokenKey: tokenKey,
	}
}

// Save writes the user record then the token. If the token write fails the
// user record is removed again so a half session is never left behind.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if !sess.Valid() {
		return errors.New("session: refusing to save incomplete session")
	}

	if err := s.SaveUser(ctx, sess.User); err != nil {
		return err
	}

	if err := s.kv.Set(ctx, s.tokenKey, sess.Token); err != nil {
		_ = s.kv.Delete(ctx, s.userKey)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return nil
}

// SaveUser overwrites only the user record.
func (s *Store) SaveUser(ctx context.Context, u User) error {
	encoded, err := EncodeUser(u)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, s.userKey, encoded); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Load returns the stored session. A missing user or token yields
// [ErrNotFound]; an undecodable user record yields [ErrCorrupt].
func (s *Store) Load(ctx context.Context) (*Session, error) {
	rawUser, err := s.get(ctx, s.userKey)
	if err != nil {
		return nil, err
	}
	token, err := s.get(ctx, s.tokenKey)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotFound
	}

	u, err := DecodeUser(rawUser)
	if err != nil {
		return nil, err
	}

	return &Session{User: u, Token: token}, nil
}

// Clear removes both session keys. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Delete(ctx, s.userKey, s.tokenKey); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) get(ctx context.Context, key string) (string, error) {
	val, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return val, nil
}
