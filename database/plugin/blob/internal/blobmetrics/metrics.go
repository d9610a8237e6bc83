// Copyright 2025 Blink Labs Software
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

// Package blobmetrics holds the prometheus counters shared by the artifact
// store plugins
package blobmetrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const metricNamePrefix = "database_blob_"

// Metrics counts operations and bytes per operation for one store
type Metrics struct {
	ops   *prometheus.CounterVec
	bytes *prometheus.CounterVec
}

// New registers the blob counters labelled with the store name. Stores
// sharing a registry and name share the same collectors.
func New(reg prometheus.Registerer, store string) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}
	m := &Metrics{
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        metricNamePrefix + "ops_total",
				Help:        "Total number of blob operations",
				ConstLabels: prometheus.Labels{"store": store},
			},
			[]string{"op"},
		),
		bytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        metricNamePrefix + "bytes_total",
				Help:        "Total bytes read/written for blob operations",
				ConstLabels: prometheus.Labels{"store": store},
			},
			[]string{"op"},
		),
	}
	var err error
	if m.ops, err = register(reg, m.ops); err != nil {
		return nil, err
	}
	if m.bytes, err = register(reg, m.bytes); err != nil {
		return nil, err
	}
	return m, nil
}

func register(
	reg prometheus.Registerer,
	c *prometheus.CounterVec,
) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

// Observe records one operation. It is a no-op on a nil receiver.
func (m *Metrics) Observe(op string, size int) {
	if m == nil {
		return
	}
	m.ops.WithLabelValues(op).Inc()
	if size > 0 {
		m.bytes.WithLabelValues(op).Add(float64(size))
	}
}
