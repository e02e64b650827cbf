// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes mutation and deferred deletion counters
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/walteh/optimist/pkg/deferred"
	"github.com/walteh/optimist/pkg/entity"
	"github.com/walteh/optimist/pkg/mutation"
)

const (
	namespace = "optimist"
	subsystem = "mutation"
)

// 📊 Metrics records every settled mutation and every deferred deletion transition
type Metrics struct {
	settled     *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	attempts    *prometheus.HistogramVec
	deletions   *prometheus.CounterVec
	undoPending *prometheus.GaugeVec
}

var _ mutation.Reporter = (*Metrics)(nil)

// 🏭 New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		settled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "settled_total",
				Help:      "Total number of settled mutations by outcome",
			},
			[]string{"kind", "op", "outcome"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "duration_seconds",
				Help:      "Time from optimistic apply to settlement in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind", "op"},
		),
		attempts: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "attempts",
				Help:      "Gateway calls made per mutation",
				Buckets:   []float64{1, 2, 3, 5, 8},
			},
			[]string{"kind", "op"},
		),
		deletions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "deferred",
				Name:      "transitions_total",
				Help:      "Total number of deferred deletion state changes",
			},
			[]string{"kind", "state"},
		),
		undoPending: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "deferred",
				Name:      "hidden",
				Help:      "Deletions currently inside their undo window",
			},
			[]string{"kind"},
		),
	}
}

// Settled implements mutation.Reporter
func (m *Metrics) Settled(ctx context.Context, s mutation.Settlement) {
	kind, op := string(s.Kind), s.Op.String()
	m.settled.WithLabelValues(kind, op, s.Outcome.String()).Inc()
	if s.Outcome == mutation.Vanished {
		return
	}
	m.duration.WithLabelValues(kind, op).Observe(s.Duration.Seconds())
	m.attempts.WithLabelValues(kind, op).Observe(float64(s.Attempts))
}

// Transition implements deferred.TransitionFunc
func (m *Metrics) Transition(ctx context.Context, kind entity.Kind, id entity.ID, state deferred.State) {
	m.deletions.WithLabelValues(string(kind), string(state)).Inc()
	switch state {
	case deferred.StateHidden:
		m.undoPending.WithLabelValues(string(kind)).Inc()
	case deferred.StateCancelled, deferred.StateCommitted:
		m.undoPending.WithLabelValues(string(kind)).Dec()
	}
}
