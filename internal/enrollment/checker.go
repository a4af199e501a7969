// Package enrollment answers whether a student may take a course's quizzes.
// Enrollment records are owned by another service; these adapters only read.
package enrollment

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

type Checker interface {
	IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error)
}

// RedisChecker reads course rosters kept as Redis sets.
type RedisChecker struct {
	client    *redis.Client
	keyPrefix string
}

func NewRedisChecker(client *redis.Client, keyPrefix string) *RedisChecker {
	if keyPrefix == "" {
		keyPrefix = "enrollment:course:"
	}
	return &RedisChecker{client: client, keyPrefix: keyPrefix}
}

func (c *RedisChecker) IsEnrolled(ctx context.Context, studentID, courseID string) (bool, error) {
	ok, err := c.client.SIsMember(ctx, c.keyPrefix+courseID, studentID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check enrollment: %w", err)
	}
	return ok, nil
}

// OpenChecker treats every student as enrolled.
type OpenChecker struct{}

func (OpenChecker) IsEnrolled(context.Context, string, string) (bool, error) {
	return true, nil
}

// StaticChecker holds rosters in memory.
type StaticChecker struct {
	mu      sync.RWMutex
	rosters map[string]map[string]bool
}

func NewStaticChecker() *StaticChecker {
	return &StaticChecker{rosters: make(map[string]map[string]bool)}
}

func (c *StaticChecker) Enroll(courseID string, studentIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roster, ok := c.rosters[courseID]
	if !ok {
		roster = make(map[string]bool)
		c.rosters[courseID] = roster
	}
	for _, id := range studentIDs {
		roster[id] = true
	}
}

func (c *StaticChecker) IsEnrolled(_ context.Context, studentID, courseID string) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rosters[courseID][studentID], nil
}
