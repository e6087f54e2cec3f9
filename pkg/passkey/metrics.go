// Copyright (c) 2026 Meridian Press Digital
//
// This file is part of go-passkey.
//
// go-passkey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@meridianpress.com for commercial licensing options.

package passkey

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus namespace for all passkey metrics.
const metricsNamespace = "passkey"

const (
	phaseBegin  = "begin"
	phaseFinish = "finish"

	statusSuccess = "success"
	statusError   = "error"
)

var (
	// ceremoniesTotal counts ceremony operations by kind, phase, and status.
	ceremoniesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ceremonies_total",
			Help:      "Total number of ceremony operations by kind, phase, and status",
		},
		[]string{"ceremony", "phase", "status"},
	)

	// ceremonyDuration tracks ceremony operation latency in seconds.
	ceremonyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "ceremony_duration_seconds",
			Help:      "Duration of ceremony operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"ceremony", "phase"},
	)

	// ceremonyFailures counts failures by taxonomy value. Client responses
	// are deliberately generic; this is where operators see which check
	// actually failed.
	ceremonyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "ceremony_failures_total",
			Help:      "Total number of ceremony failures by kind and error type",
		},
		[]string{"ceremony", "error_type"},
	)

	// RateLimitedTotal counts requests rejected by the rate limiter before
	// any store access, by endpoint class.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "rate_limited_total",
			Help:      "Total number of requests rejected by the rate limiter, by endpoint class",
		},
		[]string{"class"},
	)
)

func observeCeremony(kind CeremonyKind, phase string, err error, started time.Time) {
	status := statusSuccess
	if err != nil {
		status = statusError
		ceremonyFailures.WithLabelValues(string(kind), errorType(err)).Inc()
	}
	ceremoniesTotal.WithLabelValues(string(kind), phase, status).Inc()
	ceremonyDuration.WithLabelValues(string(kind), phase).Observe(time.Since(started).Seconds())
}

func errorType(err error) string {
	switch {
	case errors.Is(err, ErrChallengeNotFound):
		return "challenge_not_found"
	case errors.Is(err, ErrClonedAuthenticator):
		return "possible_clone_detected"
	case errors.Is(err, ErrDuplicateCredential):
		return "duplicate_credential"
	case errors.Is(err, ErrUnknownCredential):
		return "unknown_credential"
	case errors.Is(err, ErrNoCredentials):
		return "no_credentials_registered"
	case errors.Is(err, ErrCounterConflict):
		return "counter_conflict"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	default:
		return "internal"
	}
}
