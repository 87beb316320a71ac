// Copyright 2021 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package v2

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PipelineRunCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "pipeline",
			Name:      "run_total",
			Help:      "Total number of pipeline runs by result.",
		}, []string{"result"})

	PipelineRunningGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "pipeline",
			Name:      "running",
			Help:      "Number of pipeline executors currently running.",
		})

	processorStepCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "pipeline",
			Name:      "processor_step_total",
			Help:      "Total number of processor steps.",
		}, []string{"type"})

	processorStepDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mo",
			Subsystem: "pipeline",
			Name:      "processor_step_duration_seconds",
			Help:      "Bucketed histogram of processor step duration.",
			Buckets:   getDurationBuckets(),
		}, []string{"type"})
)

var (
	PipelineRunSucceededCounter   = PipelineRunCounter.WithLabelValues("succeeded")
	PipelineRunFailedCounter      = PipelineRunCounter.WithLabelValues("failed")
	PipelineRunInterruptedCounter = PipelineRunCounter.WithLabelValues("interrupted")

	ProcessorSyncStepCounter  = processorStepCounter.WithLabelValues("sync")
	ProcessorAsyncStepCounter = processorStepCounter.WithLabelValues("async")

	ProcessorSyncDurationHistogram  = processorStepDurationHistogram.WithLabelValues("sync")
	ProcessorAsyncDurationHistogram = processorStepDurationHistogram.WithLabelValues("async")
)
