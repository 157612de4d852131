// Copyright (C) 2025 Preventi Flow (dev@preventiflow.cl)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// =============================================================================
// Rate Limiter Store
// =============================================================================

// RateLimiterConfig tunes the per-client token bucket.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained refill rate per client IP.
	RequestsPerSecond float64

	// Burst is the bucket capacity per client IP.
	Burst int

	// IdleTTL bounds how long an inactive client's bucket is retained
	// before the sweeper reclaims it.
	IdleTTL time.Duration
}

// DefaultRateLimiterConfig is tuned for interactive chat traffic: short
// bursts are fine, sustained hammering is not.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 2,
		Burst:             5,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiterStore keeps one token bucket per client IP.
//
// # Thread Safety
//
// Safe for concurrent use. The sweeper goroutine, started by the
// constructor, evicts idle buckets so the map cannot grow without bound.
type RateLimiterStore struct {
	cfg RateLimiterConfig

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

// NewRateLimiterStore creates the store and starts the idle sweeper.
func NewRateLimiterStore(cfg RateLimiterConfig) *RateLimiterStore {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimiterConfig().RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimiterConfig().Burst
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultRateLimiterConfig().IdleTTL
	}

	s := &RateLimiterStore{
		cfg:     cfg,
		clients: make(map[string]*clientLimiter),
	}
	go s.sweep()
	return s
}

// Allow reports whether the client may proceed, consuming one token.
func (s *RateLimiterStore) Allow(clientIP string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	cl, ok := s.clients[clientIP]
	if !ok {
		cl = &clientLimiter{
			limiter: rate.NewLimiter(rate.Limit(s.cfg.RequestsPerSecond), s.cfg.Burst),
		}
		s.clients[clientIP] = cl
	}
	cl.lastSeen = time.Now()
	return cl.limiter.Allow()
}

// sweep evicts buckets idle longer than IdleTTL.
func (s *RateLimiterStore) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-s.cfg.IdleTTL)
		s.mu.Lock()
		for ip, cl := range s.clients {
			if cl.lastSeen.Before(cutoff) {
				delete(s.clients, ip)
			}
		}
		s.mu.Unlock()
	}
}

// =============================================================================
// Middleware
// =============================================================================

// RateLimitMiddleware rejects clients that exceed their token bucket.
//
// # Description
//
// Applied to the chat endpoints, where each request fans out to paid
// provider APIs. Keyed by client IP; exceeding the bucket returns 429.
//
// # Examples
//
//	store := middleware.NewRateLimiterStore(middleware.DefaultRateLimiterConfig())
//	ask := router.Group("/v1/ask", middleware.RateLimitMiddleware(store))
func RateLimitMiddleware(store *RateLimiterStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !store.Allow(c.ClientIP()) {
			slog.Warn("rate limit exceeded", "client_ip", c.ClientIP(), "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
			})
			return
		}
		c.Next()
	}
}
