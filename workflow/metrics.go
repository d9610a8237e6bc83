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

package workflow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const outcomeSuccess = "success"

type workflowMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	artifacts  prometheus.Counter
}

// initMetrics registers the workflow collectors. A nil registry yields
// working but unregistered collectors.
func (c *Controller) initMetrics(promRegistry prometheus.Registerer) {
	promautoFactory := promauto.With(promRegistry)
	c.metrics = &workflowMetrics{
		operations: promautoFactory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "workflow_operations_total",
				Help: "workflow operations by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		duration: promautoFactory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "workflow_operation_duration_seconds",
				Help:    "workflow operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		artifacts: promautoFactory.NewCounter(
			prometheus.CounterOpts{
				Name: "workflow_artifacts_written_total",
				Help: "artifacts written by committed workflow operations",
			},
		),
	}
}

func (c *Controller) observe(operation string, start time.Time, err error) {
	outcome := outcomeSuccess
	if err != nil {
		outcome = ErrorCode(err)
	}
	c.metrics.operations.WithLabelValues(operation, outcome).Inc()
	c.metrics.duration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
