package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Should be safe to use in concurrency.
// Only submission ids are recorded, never applicant data.
type SubmissionRegistry interface {
	// Claim marks the submission as handled. It returns false when the id
	// was already claimed and the claim has neither expired nor been released.
	Claim(ctx context.Context, submissionId string) (bool, error)

	// Release drops a claim so a redelivery of the same submission is
	// processed again. Releasing an unknown id is not an error.
	Release(ctx context.Context, submissionId string) error
}

const DefaultReplayTtl time.Duration = 24 * time.Hour

func createKey(namespace, submissionId string) string {
	return fmt.Sprintf("%s:submission:%s", namespace, submissionId)
}

// ------------------------------------------------------------------------------

type RedisSubmissionRegistry struct {
	client    *redis.Client
	namespace string
	ttl       time.Duration
}

func NewRedisSubmissionRegistry(client *redis.Client, namespace string, ttl time.Duration) *RedisSubmissionRegistry {
	return &RedisSubmissionRegistry{client: client, namespace: namespace, ttl: ttl}
}

func (s *RedisSubmissionRegistry) Claim(ctx context.Context, submissionId string) (bool, error) {
	return s.client.SetNX(ctx, createKey(s.namespace, submissionId), time.Now().Unix(), s.ttl).Result()
}

func (s *RedisSubmissionRegistry) Release(ctx context.Context, submissionId string) error {
	return s.client.Del(ctx, createKey(s.namespace, submissionId)).Err()
}

// ------------------------------------------------------------------------------

type InMemorySubmissionRegistry struct {
	claims map[string]time.Time
	ttl    time.Duration
	now    func() time.Time
	mutex  sync.Mutex
}

func NewInMemorySubmissionRegistry(ttl time.Duration) *InMemorySubmissionRegistry {
	return &InMemorySubmissionRegistry{
		claims: make(map[string]time.Time),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *InMemorySubmissionRegistry) Claim(_ context.Context, submissionId string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	s.evictExpired(now)

	if _, ok := s.claims[submissionId]; ok {
		return false, nil
	}
	s.claims[submissionId] = now.Add(s.ttl)
	return true, nil
}

func (s *InMemorySubmissionRegistry) Release(_ context.Context, submissionId string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	delete(s.claims, submissionId)
	return nil
}

// evictExpired must be called with the mutex held.
func (s *InMemorySubmissionRegistry) evictExpired(now time.Time) {
	for id, expiry := range s.claims {
		if !now.Before(expiry) {
			delete(s.claims, id)
		}
	}
}
