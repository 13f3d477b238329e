package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"medid/internal/token/models"
	id "medid/pkg/domain"
	"medid/pkg/platform/sentinel"
)

var findDurationMs = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "medid_token_find_duration_ms",
	Help:    "Latency of access token lookups in milliseconds",
	Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25},
})

const tokenKeyPrefix = "tat:token:"

// tokenRecord is the Redis JSON shape of an access token.
type tokenRecord struct {
	ID             string    `json:"id"`
	PatientIDs     []string  `json:"patient_ids"`
	IssuedTo       string    `json:"issued_to"`
	OrganizationID string    `json:"organization_id"`
	IssuedAt       time.Time `json:"issued_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	Revoked        bool      `json:"revoked"`
}

// RedisStore is the production token store for distributed deployments where
// multiple instances share token state. The key TTL tracks token expiry so
// Redis performs the reclamation sweep itself; DeleteExpired is therefore a
// no-op kept for interface symmetry.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed token store.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Save stores the token under its id with a TTL slightly past expiry, so a
// Find that races the boundary still observes the record and applies the
// expiry check itself.
func (s *RedisStore) Save(ctx context.Context, token models.AccessToken) error {
	payload, err := json.Marshal(encodeToken(token))
	if err != nil {
		return fmt.Errorf("marshal access token: %w", err)
	}
	ttl := time.Until(token.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, tokenKeyPrefix+token.ID.String(), payload, ttl).Err(); err != nil {
		return fmt.Errorf("save access token: %w", err)
	}
	return nil
}

// Find returns the token or wrapped sentinel.ErrNotFound.
func (s *RedisStore) Find(ctx context.Context, tokenID id.TokenID) (models.AccessToken, error) {
	start := time.Now()
	defer func() {
		findDurationMs.Observe(float64(time.Since(start).Microseconds()) / 1000.0)
	}()

	raw, err := s.client.Get(ctx, tokenKeyPrefix+tokenID.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.AccessToken{}, fmt.Errorf("access token not found: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return models.AccessToken{}, fmt.Errorf("find access token: %w", err)
	}
	var record tokenRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return models.AccessToken{}, fmt.Errorf("unmarshal access token: %w", err)
	}
	return decodeToken(record)
}

// MarkRevoked rewrites the record with the revoked flag. Unknown tokens are a
// no-op. The TTL is recomputed from the token's expiry rather than carried
// over with KEEPTTL: if the key lapses between the read and the write, KEEPTTL
// would recreate it without any TTL and the revoked record would linger
// forever. The explicit deadline keeps the rewrite bounded either way.
func (s *RedisStore) MarkRevoked(ctx context.Context, tokenID id.TokenID) error {
	key := tokenKeyPrefix + tokenID.String()
	token, err := s.Find(ctx, tokenID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	token.Revoked = true
	payload, err := json.Marshal(encodeToken(token))
	if err != nil {
		return fmt.Errorf("marshal access token: %w", err)
	}
	ttl := time.Until(token.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := s.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

// DeleteExpired is a no-op: Redis evicts expired keys via their TTL.
func (s *RedisStore) DeleteExpired(_ context.Context, _ time.Time) (int, error) {
	return 0, nil
}

func encodeToken(token models.AccessToken) tokenRecord {
	patients := make([]string, len(token.PatientIDs))
	for i, pid := range token.PatientIDs {
		patients[i] = pid.String()
	}
	return tokenRecord{
		ID:             token.ID.String(),
		PatientIDs:     patients,
		IssuedTo:       token.IssuedTo.String(),
		OrganizationID: token.OrganizationID.String(),
		IssuedAt:       token.IssuedAt,
		ExpiresAt:      token.ExpiresAt,
		Revoked:        token.Revoked,
	}
}

func decodeToken(record tokenRecord) (models.AccessToken, error) {
	tokenID, err := id.ParseTokenID(record.ID)
	if err != nil {
		return models.AccessToken{}, fmt.Errorf("decode token id: %w", err)
	}
	issuedTo, err := id.ParseClinicianID(record.IssuedTo)
	if err != nil {
		return models.AccessToken{}, fmt.Errorf("decode clinician id: %w", err)
	}
	orgID, err := id.ParseOrgID(record.OrganizationID)
	if err != nil {
		return models.AccessToken{}, fmt.Errorf("decode organization id: %w", err)
	}
	patients := make([]id.PatientID, len(record.PatientIDs))
	for i, raw := range record.PatientIDs {
		pid, err := id.ParsePatientID(raw)
		if err != nil {
			return models.AccessToken{}, fmt.Errorf("decode patient id: %w", err)
		}
		patients[i] = pid
	}
	return models.AccessToken{
		ID:             tokenID,
		PatientIDs:     patients,
		IssuedTo:       issuedTo,
		OrganizationID: orgID,
		IssuedAt:       record.IssuedAt,
		ExpiresAt:      record.ExpiresAt,
		Revoked:        record.Revoked,
	}, nil
}
