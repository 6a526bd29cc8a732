package issuance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "cnw_nodelock"

// RedisOption configures a RedisRegistry.
type RedisOption func(*RedisRegistry)

// WithKeyPrefix sets the prefix of every key. Default: "cnw_nodelock".
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *RedisRegistry) {
		r.prefix = prefix
	}
}

// RedisRegistry implements Registry using Redis. Records are stored as JSON
// strings, with a set of license ids per fingerprint and a sorted set of
// validity ends for pruning.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	owned  bool
}

// NewRedisRegistry creates a Redis-backed registry. The caller keeps
// ownership of client.
func NewRedisRegistry(client *redis.Client, opts ...RedisOption) (*RedisRegistry, error) {
	r := &RedisRegistry{
		client: client,
		prefix: defaultRedisPrefix,
	}
	for _, opt := range opts {
		opt(r)
	}
	if !validIdentifier.MatchString(r.prefix) {
		return nil, fmt.Errorf("invalid key prefix %q: must match [a-zA-Z_][a-zA-Z0-9_]*", r.prefix)
	}
	return r, nil
}

func (r *RedisRegistry) recordKey(licenseID string) string {
	return r.prefix + ":license:" + licenseID
}

func (r *RedisRegistry) fingerprintKey(fingerprint string) string {
	return r.prefix + ":fingerprint:" + fingerprint
}

func (r *RedisRegistry) expiryKey() string {
	return r.prefix + ":expiry"
}

func (r *RedisRegistry) Register(ctx context.Context, rec Record) (*Record, error) {
	prev, err := r.Get(ctx, rec.LicenseID)
	switch {
	case errors.Is(err, ErrNotFound):
		rec.RecordedAt = time.Now().UTC()
	case err != nil:
		return nil, err
	default:
		rec.RecordedAt = prev.RecordedAt
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode issuance: %w", err)
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		if prev != nil && prev.Fingerprint != rec.Fingerprint {
			p.SRem(ctx, r.fingerprintKey(prev.Fingerprint), rec.LicenseID)
		}
		p.Set(ctx, r.recordKey(rec.LicenseID), data, 0)
		p.SAdd(ctx, r.fingerprintKey(rec.Fingerprint), rec.LicenseID)
		if rec.ValidTo != nil {
			p.ZAdd(ctx, r.expiryKey(), redis.Z{Score: float64(rec.ValidTo.Unix()), Member: rec.LicenseID})
		} else {
			p.ZRem(ctx, r.expiryKey(), rec.LicenseID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("register issuance: %w", err)
	}
	return &rec, nil
}

func (r *RedisRegistry) Get(ctx context.Context, licenseID string) (*Record, error) {
	raw, err := r.client.Get(ctx, r.recordKey(licenseID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get issuance: %w", err)
	}
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode issuance: %w", err)
	}
	return &rec, nil
}

func (r *RedisRegistry) ListByFingerprint(ctx context.Context, fingerprint string) ([]Record, error) {
	ids, err := r.client.SMembers(ctx, r.fingerprintKey(fingerprint)).Result()
	if err != nil {
		return nil, fmt.Errorf("list issuance: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list issuance: %w", err)
	}
	records := make([]Record, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("decode issuance: %w", err)
		}
		records = append(records, rec)
	}
	sortByIssue(records)
	return records, nil
}

func (r *RedisRegistry) Count(ctx context.Context, fingerprint string) (int, error) {
	n, err := r.client.SCard(ctx, r.fingerprintKey(fingerprint)).Result()
	if err != nil {
		return 0, fmt.Errorf("count issuance: %w", err)
	}
	return int(n), nil
}

func (r *RedisRegistry) Delete(ctx context.Context, licenseID string) error {
	rec, err := r.Get(ctx, licenseID)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.recordKey(licenseID))
		p.SRem(ctx, r.fingerprintKey(rec.Fingerprint), licenseID)
		p.ZRem(ctx, r.expiryKey(), licenseID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete issuance: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.expiryKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("prune issuance: %w", err)
	}
	for _, id := range ids {
		if err := r.Delete(ctx, id); err != nil {
			return 0, fmt.Errorf("prune issuance: %w", err)
		}
	}
	return len(ids), nil
}

// Close closes the client only when the registry opened it itself.
func (r *RedisRegistry) Close(_ context.Context) error {
	if r.owned {
		return r.client.Close()
	}
	return nil
}
