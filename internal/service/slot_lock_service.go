package service

import (
	"context"
	"fmt"
	"time"

	"consultation-booking/internal/domain/entity"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// =============================================================================
// Scripts
// =============================================================================

// claimSlotScript takes the slot for ARGV[1] when it is free or already held
// by the same owner (refreshing the TTL). Returns 1 on success, 0 when another
// owner holds it.
var claimSlotScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1])
	if not current then
		redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2])
		return 1
	end
	if current == ARGV[1] then
		redis.call('PEXPIRE', KEYS[1], ARGV[2])
		return 1
	end
	return 0
`)

// releaseSlotScript deletes the lock only when ARGV[1] still owns it.
var releaseSlotScript = redis.NewScript(`
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`)

// =============================================================================
// Constants
// =============================================================================

const (
	RedisSlotLockKeyPrefix = "slot:lock:"

	// Timeout for individual Redis operations
	redisLockTimeout = 3 * time.Second

	minSlotLockTTL = time.Minute
)

// =============================================================================
// Types
// =============================================================================

// SlotLockService holds short-lived Redis locks on (date, time) slots.
//
// The lock is a fast path in front of the database: it turns away obvious
// contention before a row is written. The partial unique index on bookings
// remains the authority, so a lost or expired lock never lets two bookings
// share a slot.
type SlotLockService struct {
	redisClient *redis.Client
	log         *logrus.Logger
}

func NewSlotLockService(redisClient *redis.Client, log *logrus.Logger) *SlotLockService {
	return &SlotLockService{
		redisClient: redisClient,
		log:         log,
	}
}

// =============================================================================
// Public Methods
// =============================================================================

// Claim takes or refreshes the lock on slot for owner.
func (s *SlotLockService) Claim(ctx context.Context, slot entity.Slot, owner string, ttl time.Duration) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, redisLockTimeout)
	defer cancel()

	if ttl < minSlotLockTTL {
		ttl = minSlotLockTTL
	}

	res, err := claimSlotScript.Run(ctx, s.redisClient, []string{SlotLockKey(slot)}, owner, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("claim slot %s: %w", slot, err)
	}

	if res == 0 {
		s.log.Debugf("Slot %s held by another booking, rejected %s", slot, owner)
		return false, nil
	}
	return true, nil
}

// Release drops the lock when owner still holds it.
func (s *SlotLockService) Release(ctx context.Context, slot entity.Slot, owner string) error {
	ctx, cancel := context.WithTimeout(ctx, redisLockTimeout)
	defer cancel()

	if err := releaseSlotScript.Run(ctx, s.redisClient, []string{SlotLockKey(slot)}, owner).Err(); err != nil {
		return fmt.Errorf("release slot %s: %w", slot, err)
	}
	return nil
}

// =============================================================================
// Helpers
// =============================================================================

func SlotLockKey(slot entity.Slot) string {
	return RedisSlotLockKeyPrefix + slot.Date + ":" + slot.Time
}

// SlotLockTTL keeps a confirmed slot locked until a day after it starts.
func SlotLockTTL(start time.Time) time.Duration {
	ttl := time.Until(start.Add(24 * time.Hour))
	if ttl <= 0 {
		// Past slot - short TTL for cleanup
		return minSlotLockTTL
	}
	return ttl
}
