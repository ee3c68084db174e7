// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/GroundCheck/services/orchestrator/observability"
)

// =============================================================================
// Keyed Rate Limiter
// =============================================================================

// RateLimiterConfig tunes per-caller request limits.
type RateLimiterConfig struct {
	// RequestsPerMinute is the sustained rate per caller.
	RequestsPerMinute float64

	// Burst is how many requests a caller may send at once.
	Burst int

	// IdleTTL evicts a caller's bucket after this much inactivity.
	IdleTTL time.Duration
}

// DefaultRateLimiterConfig suits a small multi-user deployment: a
// verification session is expensive, so the sustained rate is low.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerMinute: 30,
		Burst:             10,
		IdleTTL:           10 * time.Minute,
	}
}

// KeyedRateLimiter maintains one token bucket per caller, keyed by the
// authenticated user id and falling back to the client IP.
//
// # Description
//
// Buckets live in an expiring cache so idle callers do not accumulate
// forever. Lookups that race on a fresh key may momentarily create two
// buckets; one wins the cache write and the other allows at most a single
// extra request, which is acceptable slack for this limiter.
//
// # Thread Safety
//
// Safe for concurrent use.
type KeyedRateLimiter struct {
	buckets *gocache.Cache
	limit   rate.Limit
	burst   int
}

// NewKeyedRateLimiter constructs a limiter from the given config.
func NewKeyedRateLimiter(cfg RateLimiterConfig) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		buckets: gocache.New(cfg.IdleTTL, 2*cfg.IdleTTL),
		limit:   rate.Limit(cfg.RequestsPerMinute / 60.0),
		burst:   cfg.Burst,
	}
}

// Allow reports whether the caller identified by key may proceed.
func (l *KeyedRateLimiter) Allow(key string) bool {
	var limiter *rate.Limiter
	if cached, found := l.buckets.Get(key); found {
		limiter = cached.(*rate.Limiter)
	} else {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.buckets.Set(key, limiter, gocache.DefaultExpiration)
	}
	// Refresh the TTL so active callers keep their bucket state.
	l.buckets.Set(key, limiter, gocache.DefaultExpiration)
	return limiter.Allow()
}

// =============================================================================
// Middleware
// =============================================================================

// RateLimitMiddleware rejects callers exceeding their budget with 429.
//
// The caller key is the authenticated user id when auth has run, otherwise
// the client IP. endpoint labels the rejection metric.
func RateLimitMiddleware(limiter *KeyedRateLimiter, endpoint string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if authInfo := GetAuthInfo(c); authInfo != nil {
			key = authInfo.UserID
		}
		if !limiter.Allow(key) {
			if observability.DefaultMetrics != nil {
				observability.DefaultMetrics.RateLimitedTotal.WithLabelValues(endpoint).Inc()
			}
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
