package stores

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrOtpChallengeNotFound is returned by Consume when no challenge exists for the email.
	ErrOtpChallengeNotFound = errors.New("otp challenge not found")
	// ErrOtpChallengeBackend wraps storage failures.
	ErrOtpChallengeBackend = errors.New("otp challenge backend unavailable")
)

// OtpChallenge is a consumed or outstanding challenge.
type OtpChallenge struct {
	Email    string
	IssuedAt int64
}

// OtpChallengeStore records outstanding challenges keyed by normalized email.
type OtpChallengeStore interface {
	Issue(ctx context.Context, email string, issuedAt time.Time) error
	Consume(ctx context.Context, email string) (*OtpChallenge, error)
}

func challengeKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MemoryOtpChallengeStore keeps challenges in process memory.
type MemoryOtpChallengeStore struct {
	mu      sync.Mutex
	records map[string]OtpChallenge
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryOtpChallengeStore returns an empty store. A zero ttl keeps challenges until
// consumed or replaced; expiry is otherwise enforced by the backend.
func NewMemoryOtpChallengeStore(ttl time.Duration) *MemoryOtpChallengeStore {
	return &MemoryOtpChallengeStore{
		records: make(map[string]OtpChallenge),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (s *MemoryOtpChallengeStore) Issue(_ context.Context, email string, issuedAt time.Time) error {
	key := challengeKey(email)
	s.mu.Lock()
	s.records[key] = OtpChallenge{Email: key, IssuedAt: issuedAt.Unix()}
	s.mu.Unlock()
	return nil
}

func (s *MemoryOtpChallengeStore) Consume(_ context.Context, email string) (*OtpChallenge, error) {
	key := challengeKey(email)
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[key]
	if !ok {
		return nil, ErrOtpChallengeNotFound
	}
	delete(s.records, key)
	if s.ttl > 0 && s.now().After(time.Unix(record.IssuedAt, 0).Add(s.ttl)) {
		return nil, ErrOtpChallengeNotFound
	}
	return &record, nil
}

// Len returns the number of outstanding challenges.
func (s *MemoryOtpChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
