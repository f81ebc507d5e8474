// Package ratelimit throttles failed logins per email and per client address
// with a sliding window.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/upb/campaign-gateway/config"
	"github.com/upb/campaign-gateway/services"
	"go.uber.org/zap"
)

// Store keeps failed attempts per scope key
type Store interface {
	Record(ctx context.Context, scopeKey string, at time.Time) error
	Window(ctx context.Context, scopeKey string, since time.Time) (count int, oldest time.Time, err error)
	Clear(ctx context.Context, scopeKey string) error
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result represents the result of a throttle check
type Result struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	ScopeKey  string
}

// Service decides whether another login attempt is allowed
type Service struct {
	store       Store
	maxAttempts int
	window      time.Duration
	logger      *zap.Logger
	now         func() time.Time
}

// NewService creates a new Service
func NewService(store Store, cfg config.LoginThrottleConfig, logger *zap.Logger) *Service {
	return &Service{
		store:       store,
		maxAttempts: cfg.MaxAttempts,
		window:      cfg.Window,
		logger:      logger,
		now:         time.Now,
	}
}

// EmailKey is the scope key of an account
func EmailKey(email string) string {
	return "email:" + strings.ToLower(strings.TrimSpace(email))
}

// AddressKey is the scope key of a client address
func AddressKey(ip string) string {
	return "ip:" + ip
}

// Keys returns the scope keys of a login attempt. An empty address is skipped.
func Keys(email, ip string) []string {
	keys := []string{EmailKey(email)}
	if ip != "" {
		keys = append(keys, AddressKey(ip))
	}
	return keys
}

// CheckLimit evaluates each scope key and reports the first one over the limit
func (s *Service) CheckLimit(ctx context.Context, keys ...string) (*Result, error) {
	now := s.now()
	since := now.Add(-s.window)

	remaining := s.maxAttempts
	for _, key := range keys {
		count, oldest, err := s.store.Window(ctx, key, since)
		if err != nil {
			return nil, fmt.Errorf("failed to check %s: %w", key, err)
		}
		if count >= s.maxAttempts {
			return &Result{
				Allowed:  false,
				ResetAt:  oldest.Add(s.window),
				ScopeKey: key,
			}, nil
		}
		if left := s.maxAttempts - count; left < remaining {
			remaining = left
		}
	}

	return &Result{Allowed: true, Remaining: remaining}, nil
}

// Check returns ErrTooManyAttempts when any key is over the limit
func (s *Service) Check(ctx context.Context, keys ...string) error {
	result, err := s.CheckLimit(ctx, keys...)
	if err != nil {
		return services.WrapInternal("failed to check login throttle", err)
	}
	if result.Allowed {
		return nil
	}

	retryAfter := int(math.Ceil(result.ResetAt.Sub(s.now()).Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	s.logger.Warn("login throttled",
		zap.String("scope", result.ScopeKey),
		zap.Int("retry_after_seconds", retryAfter))
	return services.ErrTooManyAttempts.WithDetail(services.DetailRetryAfter, retryAfter)
}

// RecordFailure records a failed attempt against every key
func (s *Service) RecordFailure(ctx context.Context, keys ...string) error {
	now := s.now()
	for _, key := range keys {
		if err := s.store.Record(ctx, key, now); err != nil {
			return fmt.Errorf("failed to record attempt: %w", err)
		}
	}
	return nil
}

// Reset forgets the attempts of key after a successful login
func (s *Service) Reset(ctx context.Context, key string) error {
	return s.store.Clear(ctx, key)
}

// CleanupOldAttempts removes attempts older than the retention
func (s *Service) CleanupOldAttempts(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoffTime := s.now().Add(-olderThan)

	rowsAffected, err := s.store.DeleteBefore(ctx, cutoffTime)
	if err != nil {
		return 0, err
	}

	s.logger.Info("cleaned up old login attempts",
		zap.Int64("rows_deleted", rowsAffected),
		zap.Time("cutoff_time", cutoffTime))

	return rowsAffected, nil
}

// StartCleanupWorker periodically removes old attempts until ctx is done
func (s *Service) StartCleanupWorker(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("started login throttle cleanup worker",
		zap.Duration("interval", interval),
		zap.Duration("retention", retention))

	for {
		select {
		case <-ticker.C:
			if _, err := s.CleanupOldAttempts(ctx, retention); err != nil {
				s.logger.Error("failed to cleanup old login attempts", zap.Error(err))
			}
		case <-ctx.Done():
			s.logger.Info("stopping login throttle cleanup worker")
			return
		}
	}
}
