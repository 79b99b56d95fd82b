package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"calendarbot/internal/domain"
)

// ValkeyConfig configures the shared cache tier.
type ValkeyConfig struct {
	URL        string
	Password   string
	DB         int
	TLSEnabled bool
	KeyPrefix  string
}

// ValkeyTier stores JSON-encoded event lists in Valkey. Each user has an
// index set listing their keys so invalidation never needs SCAN.
type ValkeyTier struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

func NewValkeyTier(cfg ValkeyConfig, ttl time.Duration) (*ValkeyTier, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("valkey url is required")
	}
	opt := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("connect valkey %s: %w", cfg.URL, err)
	}
	return &ValkeyTier{client: client, prefix: cfg.KeyPrefix, ttl: ttl}, nil
}

func (t *ValkeyTier) Name() string { return "valkey" }

func (t *ValkeyTier) Close() {
	t.client.Close()
}

// Ping checks that the server answers.
func (t *ValkeyTier) Ping(ctx context.Context) error {
	return t.client.Do(ctx, t.client.B().Ping().Build()).Error()
}

func (t *ValkeyTier) indexKey(userID string) string {
	return t.prefix + "index:" + userID
}

func (t *ValkeyTier) Get(ctx context.Context, key string) ([]domain.Event, bool, error) {
	b, err := t.client.Do(ctx, t.client.B().Get().Key(t.prefix+key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("valkey get: %w", err)
	}
	var events []domain.Event
	if err := json.Unmarshal(b, &events); err != nil {
		return nil, false, fmt.Errorf("decode cached events: %w", err)
	}
	return events, true, nil
}

func (t *ValkeyTier) Set(ctx context.Context, key string, events []domain.Event) error {
	userID, _, ok := ParseKey(key)
	if !ok {
		return fmt.Errorf("malformed cache key %q", key)
	}
	b, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	secs := ttlSeconds(t.ttl)
	// The index lives as long as its newest entry, so it cannot outgrow
	// the keys it lists.
	cmds := []valkey.Completed{
		t.client.B().Set().Key(t.prefix + key).Value(string(b)).ExSeconds(secs).Build(),
		t.client.B().Sadd().Key(t.indexKey(userID)).Member(key).Build(),
		t.client.B().Expire().Key(t.indexKey(userID)).Seconds(secs).Build(),
	}
	for _, resp := range t.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("valkey set: %w", err)
		}
	}
	return nil
}

// ttlSeconds rounds d down to whole seconds, with a floor of one.
func ttlSeconds(d time.Duration) int64 {
	secs := int64(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// Keys lists the user's live cache keys. Members whose entry already
// expired are removed from the index.
func (t *ValkeyTier) Keys(ctx context.Context, userID string) ([]string, error) {
	index := t.indexKey(userID)
	members, err := t.client.Do(ctx, t.client.B().Smembers().Key(index).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("valkey smembers: %w", err)
	}
	if len(members) == 0 {
		return nil, nil
	}

	cmds := make([]valkey.Completed, len(members))
	for i, k := range members {
		cmds[i] = t.client.B().Exists().Key(t.prefix + k).Build()
	}
	var live, dead []string
	for i, resp := range t.client.DoMulti(ctx, cmds...) {
		n, err := resp.AsInt64()
		if err != nil {
			return nil, fmt.Errorf("valkey exists: %w", err)
		}
		if n > 0 {
			live = append(live, members[i])
		} else {
			dead = append(dead, members[i])
		}
	}
	if len(dead) > 0 {
		if err := t.client.Do(ctx, t.client.B().Srem().Key(index).Member(dead...).Build()).Error(); err != nil {
			return nil, fmt.Errorf("valkey srem: %w", err)
		}
	}
	return live, nil
}

func (t *ValkeyTier) Delete(ctx context.Context, userID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = t.prefix + k
	}
	cmds := []valkey.Completed{
		t.client.B().Del().Key(full...).Build(),
		t.client.B().Srem().Key(t.indexKey(userID)).Member(keys...).Build(),
	}
	for _, resp := range t.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("valkey delete: %w", err)
		}
	}
	return nil
}
