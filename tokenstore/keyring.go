package tokenstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/zalando/go-keyring"
)

const defaultKeyringService = "authcore"

// KeyringStore keeps the token in the operating system keychain.
type KeyringStore struct {
	service string
	user    string
	now     func() time.Time
}

// NewKeyringStore stores the token as the secret of (service, user).
func NewKeyringStore(service, user string) *KeyringStore {
	if service == "" {
		service = defaultKeyringService
	}
	if user == "" {
		user = "session_token"
	}
	return &KeyringStore{service: service, user: user, now: time.Now}
}

func (s *KeyringStore) Load(context.Context) (string, error) {
	secret, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrBackend, err)
	}
	data, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		return "", ErrCorrupt
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return "", err
	}
	return rec.Token, nil
}

func (s *KeyringStore) Save(_ context.Context, token string) error {
	encoded, err := encodeRecord(token, s.now())
	if err != nil {
		return err
	}
	if err := keyring.Set(s.service, s.user, base64.StdEncoding.EncodeToString(encoded)); err != nil {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}

func (s *KeyringStore) Clear(context.Context) error {
	if err := keyring.Delete(s.service, s.user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrBackend, err)
	}
	return nil
}
