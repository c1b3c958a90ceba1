// CloudSync - PMS Cloud Synchronization Engine
// Copyright 2026 Stayware
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/stayware/cloudsync

package pms

import (
	"context"
	"net/url"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/stayware/cloudsync/internal/config"
	"github.com/stayware/cloudsync/internal/logging"
	"github.com/stayware/cloudsync/internal/metrics"
	"github.com/stayware/cloudsync/internal/models"
)

// BreakerClient wraps Client.Do with a circuit breaker so a failing
// provider does not soak up rate limit tokens and worker time. One breaker
// covers the whole provider: an outage affects every account equally.
//
// Validation and api envelope failures do not count against the breaker;
// those are caller mistakes, not provider health.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[*models.Envelope]
	name   string
}

// NewBreakerClient wraps a Client with breaker settings from the provider
// configuration.
func NewBreakerClient(client *Client, cfg config.ProviderConfig) *BreakerClient {
	cbName := "pms-api"
	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	minRequests := cfg.BreakerMinRequests
	if minRequests == 0 {
		minRequests = 10
	}
	failureRate := cfg.BreakerFailureRate
	if failureRate <= 0 {
		failureRate = 0.6
	}

	cb := gobreaker.NewCircuitBreaker[*models.Envelope](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Timeout:     cfg.BreakerCooldown,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < minRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= failureRate {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", ratio*100).
					Msg("Provider circuit breaker opening")
				return true
			}
			return false
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := breakerStateString(from)
			toStr := breakerStateString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("Provider circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerStateFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},

		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			switch KindOf(err) {
			case KindValidation, KindAPI, KindConfiguration:
				return true
			}
			return false
		},
	})

	// Installing into the client routes every call, including the typed
	// endpoint methods, through the breaker.
	client.exec = cb.Execute
	return &BreakerClient{client: client, cb: cb, name: cbName}
}

// Do executes a provider call. The breaker is already installed on the
// inner client, so this is a plain forward.
func (b *BreakerClient) Do(ctx context.Context, accountID, method, endpoint string, params url.Values) (*models.Envelope, error) {
	return b.client.Do(ctx, accountID, method, endpoint, params)
}

// Unwrap exposes the inner Client for the typed endpoint methods.
func (b *BreakerClient) Unwrap() *Client { return b.client }

func breakerStateFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

func breakerStateString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
