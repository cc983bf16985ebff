package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"solana_game_server/models"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix    = "solana:match:"
	redisWatchRetries = 5
)

// redisMatchBlob is the single JSON value stored per match.
type redisMatchBlob struct {
	MatchPubKey string              `json:"matchPubKey"`
	SecretKey   string              `json:"secretKey"`
	Users       []models.UserRecord `json:"users"`
}

// RedisMatchStore keeps each match, members included, as one JSON blob.
// Membership changes are applied under WATCH against the stored blob.
type RedisMatchStore struct {
	Client *redis.Client
}

// NewRedisMatchStore connects to url (redis://[:password@]host:port[/db]) and pings it.
func NewRedisMatchStore(ctx context.Context, url string) (*RedisMatchStore, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisMatchStore{Client: client}, nil
}

func (s *RedisMatchStore) Close() error {
	return s.Client.Close()
}

func matchKey(matchPubKey string) string {
	return redisKeyPrefix + strings.TrimSpace(matchPubKey)
}

func (s *RedisMatchStore) WriteMatchRecord(ctx context.Context, kp models.KeyPair) error {
	raw, err := json.Marshal(redisMatchBlob{
		MatchPubKey: kp.PublicKey,
		SecretKey:   kp.SecretKey,
		Users:       []models.UserRecord{},
	})
	if err != nil {
		return err
	}
	if err := s.Client.Set(ctx, matchKey(kp.PublicKey), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to store match %s: %w", kp.PublicKey, err)
	}
	return nil
}

// WriteUserRecord merges user into the blob under WATCH so that concurrent joins
// are not lost. An existing member is left untouched.
func (s *RedisMatchStore) WriteUserRecord(ctx context.Context, user models.UserRecord) error {
	err := s.updateBlob(ctx, user.MatchPubKey, func(blob *redisMatchBlob) bool {
		users, added := appendUniqueUser(blob.Users, user)
		blob.Users = users
		return added
	})
	if err != nil {
		return fmt.Errorf("failed to add user %s: %w", user.UserPubKey, err)
	}
	return nil
}

func (s *RedisMatchStore) GetMatchRecord(ctx context.Context, matchPubKey string) (models.MatchRecord, error) {
	blob, err := readBlob(ctx, s.Client, matchKey(matchPubKey))
	if err != nil {
		return models.MatchRecord{}, err
	}
	return models.MatchRecord{MatchPubKey: blob.MatchPubKey, SecretKey: blob.SecretKey}, nil
}

func (s *RedisMatchStore) GetUserRecords(ctx context.Context, matchPubKey string) ([]models.UserRecord, error) {
	blob, err := readBlob(ctx, s.Client, matchKey(matchPubKey))
	if err != nil {
		return nil, err
	}
	if blob.Users == nil {
		return []models.UserRecord{}, nil
	}
	return blob.Users, nil
}

// RemoveUserRecords drops RemovedUsers from the stored membership.
// NewMatchState is never written back.
func (s *RedisMatchStore) RemoveUserRecords(ctx context.Context, args models.UpdateMatchArgs) error {
	if len(args.RemovedUsers) == 0 {
		return nil
	}
	err := s.updateBlob(ctx, args.MatchPubKey, func(blob *redisMatchBlob) bool {
		kept, removed := dropUsers(blob.Users, args.RemovedUsers)
		blob.Users = kept
		return removed
	})
	if err != nil {
		return fmt.Errorf("failed to update match %s: %w", args.MatchPubKey, err)
	}
	return nil
}

func (s *RedisMatchStore) RemoveMatch(ctx context.Context, matchPubKey string) error {
	if err := s.Client.Del(ctx, matchKey(matchPubKey)).Err(); err != nil {
		return fmt.Errorf("failed to delete match %s: %w", matchPubKey, err)
	}
	return nil
}

// updateBlob applies mutate to the stored blob under WATCH, retrying on conflict.
// mutate reports whether the blob changed; unchanged blobs are not rewritten.
func (s *RedisMatchStore) updateBlob(ctx context.Context, matchPubKey string, mutate func(*redisMatchBlob) bool) error {
	key := matchKey(matchPubKey)
	txf := func(tx *redis.Tx) error {
		blob, err := readBlob(ctx, tx, key)
		if err != nil {
			return err
		}
		if !mutate(&blob) {
			return nil
		}
		raw, err := json.Marshal(blob)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			return nil
		})
		return err
	}
	for i := 0; i < redisWatchRetries; i++ {
		err := s.Client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("too much contention on %s", key)
}

type redisGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readBlob(ctx context.Context, c redisGetter, key string) (redisMatchBlob, error) {
	raw, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return redisMatchBlob{}, ErrMatchNotFound
	}
	if err != nil {
		return redisMatchBlob{}, fmt.Errorf("failed to read %s: %w", key, err)
	}
	var blob redisMatchBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return redisMatchBlob{}, fmt.Errorf("corrupt match blob %s: %w", key, err)
	}
	return blob, nil
}

// appendUniqueUser appends user unless a member with the same identity exists.
func appendUniqueUser(users []models.UserRecord, user models.UserRecord) ([]models.UserRecord, bool) {
	for _, u := range users {
		if u.UserPubKey == user.UserPubKey {
			return users, false
		}
	}
	return append(users, user), true
}

// dropUsers returns users without any member listed in removed.
func dropUsers(users, removed []models.UserRecord) ([]models.UserRecord, bool) {
	gone := make(map[string]struct{}, len(removed))
	for _, u := range removed {
		gone[u.UserPubKey] = struct{}{}
	}
	kept := make([]models.UserRecord, 0, len(users))
	for _, u := range users {
		if _, ok := gone[u.UserPubKey]; !ok {
			kept = append(kept, u)
		}
	}
	return kept, len(kept) != len(users)
}
