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
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	ExchangeSendBatchCounter.Inc()
	ProcessorSyncStepCounter.Inc()
	ProcessorSyncDurationHistogram.Observe(0.001)

	mfs, err := GetPrometheusGatherer().Gather()
	require.NoError(t, err)
	names := make(map[string]struct{})
	for _, mf := range mfs {
		names[mf.GetName()] = struct{}{}
	}
	for _, name := range []string{
		"mo_pipeline_running",
		"mo_pipeline_processor_step_total",
		"mo_pipeline_processor_step_duration_seconds",
		"mo_exchange_batch_total",
	} {
		require.Contains(t, names, name)
	}

	// send and receive children exist from init.
	require.Equal(t, 2, testutil.CollectAndCount(exchangeBatchCounter))
	require.GreaterOrEqual(t, testutil.ToFloat64(ExchangeSendBatchCounter), 1.0)
}
