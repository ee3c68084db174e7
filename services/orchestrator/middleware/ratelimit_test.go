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
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/GroundCheck/pkg/extensions"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestKeyedRateLimiter_BurstThenDeny(t *testing.T) {
	l := NewKeyedRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 1,
		Burst:             3,
		IdleTTL:           time.Minute,
	})

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("user-a"), "request %d within burst", i)
	}
	assert.False(t, l.Allow("user-a"))
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	l := NewKeyedRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 1,
		Burst:             1,
		IdleTTL:           time.Minute,
	})

	assert.True(t, l.Allow("user-a"))
	assert.False(t, l.Allow("user-a"))
	assert.True(t, l.Allow("user-b"))
}

func rateLimitedRouter(l *KeyedRateLimiter, authed bool) *gin.Engine {
	router := gin.New()
	router.POST("/verify", func(c *gin.Context) {
		if authed {
			SetAuthInfo(c, &extensions.AuthInfo{UserID: "user-a"})
		}
		c.Next()
	}, RateLimitMiddleware(l, "verify"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestRateLimitMiddleware_RejectsWith429(t *testing.T) {
	l := NewKeyedRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 1,
		Burst:             1,
		IdleTTL:           time.Minute,
	})
	router := rateLimitedRouter(l, true)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verify", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/verify", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestRateLimitMiddleware_FallsBackToClientIP(t *testing.T) {
	l := NewKeyedRateLimiter(RateLimiterConfig{
		RequestsPerMinute: 1,
		Burst:             1,
		IdleTTL:           time.Minute,
	})
	router := rateLimitedRouter(l, false)

	req := httptest.NewRequest(http.MethodPost, "/verify", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	// Same IP is throttled, a different IP is not.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	other := httptest.NewRequest(http.MethodPost, "/verify", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	router.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}
