package repo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/infolock/server/internal/model"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 3

// Record layout:
//
//	otp:{owner}:rec:{id}  hash with code_hash, attempts, created_at, expires_at (unix micros)
//	otp:{owner}:idx       sorted set of "{seq}:{id}" scored by created_at
//	otp:{owner}:seq       insertion counter used as the tie-break within one instant
//
// The braces make all keys of one owner share a cluster slot. Every key
// carries the record expiry, so Redis drops stale codes on its own.

var reserveAttempt = redis.NewScript(`
local n = redis.call('HGET', KEYS[1], 'attempts')
if not n or tonumber(n) >= tonumber(ARGV[1]) then
	return 0
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return 1
`)

type redisOtpRepo struct {
	rdb redis.UniversalClient
}

// NewRedisOtpRepo creates an OtpRepo that keeps records in Redis with native TTL
func NewRedisOtpRepo(rdb redis.UniversalClient) OtpRepo {
	return &redisOtpRepo{rdb: rdb}
}

func recordKey(owner model.OwnerRef, id string) string {
	return "otp:{" + owner.String() + "}:rec:" + id
}

func indexKey(owner model.OwnerRef) string {
	return "otp:{" + owner.String() + "}:idx"
}

func seqKey(owner model.OwnerRef) string {
	return "otp:{" + owner.String() + "}:seq"
}

func memberID(member string) string {
	_, id, _ := strings.Cut(member, ":")
	return id
}

func (r *redisOtpRepo) Insert(ctx context.Context, rec model.OtpRecord, replaceExisting bool) error {
	owner := rec.Owner
	idx := indexKey(owner)
	rk := recordKey(owner, rec.ID.String())

	seq, err := r.rdb.Incr(ctx, seqKey(owner)).Result()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	member := fmt.Sprintf("%020d:%s", seq, rec.ID)

	txf := func(tx *redis.Tx) error {
		var stale []string
		if replaceExisting {
			var err error
			stale, err = tx.ZRange(ctx, idx, 0, -1).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, m := range stale {
				pipe.Del(ctx, recordKey(owner, memberID(m)))
			}
			if len(stale) > 0 {
				pipe.Del(ctx, idx)
			}
			pipe.HSet(ctx, rk,
				"code_hash", rec.CodeHash,
				"attempts", rec.AttemptCount,
				"created_at", rec.CreatedAt.UnixMicro(),
				"expires_at", rec.ExpiresAt.UnixMicro(),
			)
			pipe.PExpireAt(ctx, rk, rec.ExpiresAt)
			pipe.ZAdd(ctx, idx, redis.Z{Score: float64(rec.CreatedAt.UnixMicro()), Member: member})
			pipe.PExpireAt(ctx, idx, rec.ExpiresAt)
			pipe.PExpireAt(ctx, seqKey(owner), rec.ExpiresAt)
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err = r.rdb.Watch(ctx, txf, idx)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return fmt.Errorf("insert record: %w", err)
}

func (r *redisOtpRepo) LatestActive(ctx context.Context, owner model.OwnerRef, now time.Time) (model.OtpRecord, error) {
	idx := indexKey(owner)
	members, err := r.rdb.ZRevRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("query index: %w", err)
	}

	for _, m := range members {
		id := memberID(m)
		fields, err := r.rdb.HGetAll(ctx, recordKey(owner, id)).Result()
		if err != nil {
			return model.OtpRecord{}, fmt.Errorf("query record: %w", err)
		}
		if len(fields) == 0 {
			// consumed or expired; drop the dangling index entry
			r.rdb.ZRem(ctx, idx, m)
			continue
		}
		rec, err := parseRedisRecord(owner, id, fields)
		if err != nil {
			return model.OtpRecord{}, err
		}
		if !rec.ExpiresAt.After(now) {
			continue
		}
		return rec, nil
	}
	return model.OtpRecord{}, ErrNotFound
}

func parseRedisRecord(owner model.OwnerRef, id string, fields map[string]string) (model.OtpRecord, error) {
	recID, err := uuid.Parse(id)
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse record ID: %w", err)
	}
	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse attempts: %w", err)
	}
	created, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse created_at: %w", err)
	}
	expires, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return model.OtpRecord{}, fmt.Errorf("parse expires_at: %w", err)
	}
	return model.OtpRecord{
		ID:           recID,
		Owner:        owner,
		CodeHash:     fields["code_hash"],
		AttemptCount: attempts,
		CreatedAt:    time.UnixMicro(created).UTC(),
		ExpiresAt:    time.UnixMicro(expires).UTC(),
	}, nil
}

// Consume relies on DEL being atomic: only one caller sees a deleted count of 1
func (r *redisOtpRepo) Consume(ctx context.Context, rec model.OtpRecord) (bool, error) {
	n, err := r.rdb.Del(ctx, recordKey(rec.Owner, rec.ID.String())).Result()
	if err != nil {
		return false, fmt.Errorf("consume record: %w", err)
	}
	return n == 1, nil
}

// ReserveAttempt runs the bound check and increment as one script
func (r *redisOtpRepo) ReserveAttempt(ctx context.Context, rec model.OtpRecord, limit int) (bool, error) {
	n, err := reserveAttempt.Run(ctx, r.rdb, []string{recordKey(rec.Owner, rec.ID.String())}, limit).Int()
	if err != nil {
		return false, fmt.Errorf("reserve attempt: %w", err)
	}
	return n == 1, nil
}

// DeleteExpired is a no-op: key expiry already removes stale records
func (r *redisOtpRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
