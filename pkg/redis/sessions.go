package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// SessionStore persists merge sessions between requests. Sessions expire after ttl of inactivity.
type SessionStore struct {
	client    *Client
	keyPrefix string
	ttl       time.Duration
}

func NewSessionStore(client *Client, keyPrefix string, ttl time.Duration) *SessionStore {
	if keyPrefix == "" {
		keyPrefix = "merge_session:"
	}
	return &SessionStore{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
	}
}

// Save writes the session and refreshes its expiry
func (s *SessionStore) Save(ctx context.Context, session *models.MergeSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to encode merge session")
	}

	if err := s.client.rdb.Set(ctx, s.keyPrefix+session.ID, data, s.ttl).Err(); err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("failed to save merge session %s", session.ID)
		return ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to save merge session")
	}
	return nil
}

// Get loads a session. Expired and unknown sessions are SessionNotFound.
func (s *SessionStore) Get(ctx context.Context, id string) (*models.MergeSession, error) {
	data, err := s.client.rdb.Get(ctx, s.keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ferrors.Newf(ferrors.KindSessionNotFound, "merge session %s not found", id)
	}
	if err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("failed to load merge session %s", id)
		return nil, ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to load merge session")
	}

	var session models.MergeSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to decode merge session")
	}
	return &session, nil
}

// Delete removes a session
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.rdb.Del(ctx, s.keyPrefix+id).Err(); err != nil {
		s.client.logger.WithContext(ctx).WithError(err).Errorf("failed to delete merge session %s", id)
		return ferrors.Wrap(ferrors.KindStoreFailure, err, "failed to delete merge session")
	}
	return nil
}
