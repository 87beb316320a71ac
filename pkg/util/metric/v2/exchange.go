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
	exchangeBytesCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "exchange",
			Name:      "bytes_total",
			Help:      "Total bytes of exchange frames.",
		}, []string{"type"})

	exchangeBatchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "exchange",
			Name:      "batch_total",
			Help:      "Total number of batches moved across fragments.",
		}, []string{"type"})
)

var (
	ExchangeSendBytesCounter = exchangeBytesCounter.WithLabelValues("send")
	ExchangeRecvBytesCounter = exchangeBytesCounter.WithLabelValues("receive")

	ExchangeSendBatchCounter = exchangeBatchCounter.WithLabelValues("send")
	ExchangeRecvBatchCounter = exchangeBatchCounter.WithLabelValues("receive")
)
