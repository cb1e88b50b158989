package stores

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	otpChallengeRecordVersion1 = 1
)

// RedisOtpChallengeStore keeps challenges under prefix:email.
type RedisOtpChallengeStore struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisOtpChallengeStore returns a store on redisClient. A zero ttl keeps records
// until consumed or replaced.
func NewRedisOtpChallengeStore(redisClient redis.UniversalClient, prefix string, ttl time.Duration) *RedisOtpChallengeStore {
	if prefix == "" {
		prefix = "aoc"
	}
	return &RedisOtpChallengeStore{
		redis:  redisClient,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisOtpChallengeStore) key(email string) string {
	return s.prefix + ":" + challengeKey(email)
}

func (s *RedisOtpChallengeStore) Issue(ctx context.Context, email string, issuedAt time.Time) error {
	encoded, err := encodeOtpChallenge(&OtpChallenge{Email: challengeKey(email), IssuedAt: issuedAt.Unix()})
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(email), encoded, s.ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrOtpChallengeBackend, err)
	}
	return nil
}

func (s *RedisOtpChallengeStore) Consume(ctx context.Context, email string) (*OtpChallenge, error) {
	const maxRetries = 4
	key := s.key(email)

	for i := 0; i < maxRetries; i++ {
		var record *OtpChallenge
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			decoded, err := decodeOtpChallenge(data)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}
			record = decoded
			return nil
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return nil, ErrOtpChallengeNotFound
			}
			return nil, fmt.Errorf("%w: %v", ErrOtpChallengeBackend, err)
		}
		return record, nil
	}

	return nil, ErrOtpChallengeNotFound
}

func encodeOtpChallenge(record *OtpChallenge) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(otpChallengeRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.IssuedAt); err != nil {
		return nil, err
	}
	if len(record.Email) > 65535 {
		return nil, errors.New("otp challenge email length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.Email))); err != nil {
		return nil, err
	}
	buf.WriteString(record.Email)

	return buf.Bytes(), nil
}

func decodeOtpChallenge(data []byte) (*OtpChallenge, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != otpChallengeRecordVersion1 {
		return nil, errors.New("invalid otp challenge version")
	}

	record := &OtpChallenge{}
	if err := binary.Read(reader, binary.BigEndian, &record.IssuedAt); err != nil {
		return nil, err
	}

	var emailLen uint16
	if err := binary.Read(reader, binary.BigEndian, &emailLen); err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	record.Email = string(email)

	return record, nil
}
