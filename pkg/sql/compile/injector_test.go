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

package compile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/output"
	"github.com/matrixorigin/mopipeline/pkg/testutil"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

func senderResult(t *testing.T, base int64) *PipelineBuildResult {
	bats := make([]*batch.Batch, 3)
	for i := range bats {
		keys := make([]int64, 20)
		vals := make([]int64, 20)
		for j := range keys {
			keys[j] = int64(j % 7)
			vals[j] = base + int64(i*20+j)
		}
		bats[i] = testutil.NewInt64Batch([]string{"k", "v"}, keys, vals)
	}
	r, err := FromBatches(bats)
	require.NoError(t, err)
	return r
}

func TestDefaultExchangeInjector(t *testing.T) {
	ctx := context.Background()
	ex := &Exchange{FragmentID: "f1", Senders: []string{"cn1"}, Receivers: []string{"cn1"}, SenderLanes: 1}
	inj := DefaultExchangeInjector{}
	require.True(t, inj.IsLocal(ex))

	p := pipeline.New()
	require.Error(t, inj.InjectSink(ctx, p, ex))
	require.Error(t, inj.InjectSource(ctx, p, ex, 2))

	r := senderResult(t, 0)
	q, err := CrossBoundary(ctx, inj, r.MainPipeline, ex, 2)
	require.NoError(t, err)
	require.Same(t, r.MainPipeline, q)
	require.Equal(t, 2, q.OutputLen())

	c := output.NewCollector()
	require.NoError(t, q.AddSink(c.NewProcessor))
	require.NoError(t, Run(ctx, r, RunOptions{MaxThreads: 2}))
	require.Equal(t, 60, c.RowCount())

	require.Error(t, inj.InjectSink(ctx, q, ex))
}

func TestRemoteExchangeInjectorValidation(t *testing.T) {
	ctx := context.Background()
	hub := exchange.NewLocalHub(exchange.DefaultBufferSize)
	defer hub.Close()
	inj := &RemoteExchangeInjector{Transport: hub.Node("cn9"), LocalNode: "cn9"}

	tests := []struct {
		ex      *Exchange
		message string
	}{
		{
			ex:      &Exchange{Senders: []string{"cn1"}, Receivers: []string{"cn2"}, SenderLanes: 1},
			message: "without fragment id",
		},
		{
			ex:      &Exchange{FragmentID: "f1", Receivers: []string{"cn2"}, SenderLanes: 1},
			message: "needs senders and receivers",
		},
		{
			ex:      &Exchange{FragmentID: "f1", Senders: []string{"cn1"}, Receivers: []string{"cn2"}},
			message: "sender lanes",
		},
		{
			ex:      &Exchange{FragmentID: "f1", Senders: []string{"cn1"}, Receivers: []string{"cn2"}, SenderLanes: 1},
			message: "unknown exchange fragment f1",
		},
	}
	for _, tt := range tests {
		err := inj.InjectSink(ctx, senderResult(t, 0).MainPipeline, tt.ex)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrPipelineConstruct))
		require.Contains(t, err.Error(), tt.message)

		err = inj.InjectSource(ctx, pipeline.New(), tt.ex, 1)
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrPipelineConstruct))
		require.Contains(t, err.Error(), tt.message)
	}

	ex := &Exchange{FragmentID: "f1", Senders: []string{"cn9"}, Receivers: []string{"cn9", "cn2"}, SenderLanes: 1}
	require.False(t, inj.IsLocal(ex))
	require.Error(t, inj.InjectSink(ctx, pipeline.New(), ex))
	require.Error(t, inj.InjectSource(ctx, senderResult(t, 0).MainPipeline, &Exchange{
		FragmentID: "f1", Senders: []string{"cn2"}, Receivers: []string{"cn9"}, SenderLanes: 1,
	}, 1))

	local := &Exchange{FragmentID: "f2", Senders: []string{"cn9"}, Receivers: []string{"cn9"}, SenderLanes: 1}
	require.True(t, inj.IsLocal(local))
	r := senderResult(t, 0)
	q, err := CrossBoundary(ctx, inj, r.MainPipeline, local, 1)
	require.NoError(t, err)
	require.Same(t, r.MainPipeline, q)
}

func TestRemoteExchange(t *testing.T) {
	for _, compress := range []bool{false, true} {
		ctx := context.Background()
		hub := exchange.NewLocalHub(4)
		ex := &Exchange{
			FragmentID:  "f1",
			Kind:        exchange.Hash,
			KeyColumns:  []int32{0},
			Senders:     []string{"cn1", "cn2"},
			Receivers:   []string{"cn3", "cn4"},
			SenderLanes: 2,
		}

		var queries []*Query
		for i, node := range ex.Senders {
			inj := &RemoteExchangeInjector{Transport: hub.Node(node), LocalNode: node, Compress: compress}
			r := senderResult(t, int64(i*1000))
			r.ExchangeInjector = inj
			require.False(t, inj.IsLocal(ex))
			require.NoError(t, inj.InjectSink(ctx, r.MainPipeline, ex))
			require.Equal(t, 0, r.MainPipeline.OutputLen())
			queries = append(queries, NewQuery(r, RunOptions{MaxThreads: 2}))
		}

		collectors := make([]*output.Collector, len(ex.Receivers))
		for i, node := range ex.Receivers {
			inj := &RemoteExchangeInjector{
				Transport:   hub.Node(node),
				LocalNode:   node,
				Compress:    compress,
				RecvTimeout: 5 * time.Second,
			}
			r := NewPipelineBuildResult()
			r.ExchangeInjector = inj
			require.NoError(t, inj.InjectSource(ctx, r.MainPipeline, ex, 2))
			collectors[i] = output.NewCollector()
			require.NoError(t, r.MainPipeline.AddSink(collectors[i].NewProcessor))
			queries = append(queries, NewQuery(r, RunOptions{MaxThreads: 2}))
		}

		require.NoError(t, RunFragments(ctx, queries...))
		hub.Close()

		total := 0
		owner := make(map[string]int)
		for i, c := range collectors {
			require.True(t, c.Done())
			total += c.RowCount()
			for _, row := range testutil.Rows(c.Batches()) {
				key := strings.SplitN(row, ",", 2)[0]
				if prev, ok := owner[key]; ok {
					require.Equal(t, prev, i, "key %s reached two receivers", key)
				}
				owner[key] = i
			}
		}
		require.Equal(t, 120, total)
		require.Len(t, owner, 7)
	}
}

func TestRemoteExchangeSenderFailure(t *testing.T) {
	ctx := context.Background()
	hub := exchange.NewLocalHub(4)
	defer hub.Close()
	boom := errors.New("scan failed")
	ex := &Exchange{
		FragmentID:  "f1",
		Kind:        exchange.Broadcast,
		Senders:     []string{"cn1"},
		Receivers:   []string{"cn2"},
		SenderLanes: 1,
	}

	sendInj := &RemoteExchangeInjector{Transport: hub.Node("cn1"), LocalNode: "cn1"}
	sr := senderResult(t, 0)
	require.NoError(t, sr.MainPipeline.AddTransform(func(in *pipeline.InputPort, out *pipeline.OutputPort) (pipeline.Processor, error) {
		return colexec.NewTransformer("fail", in, out, &trackOp{err: boom, freed: new(atomic.Int32), failed: new(atomic.Int32)}), nil
	}))
	require.NoError(t, sendInj.InjectSink(ctx, sr.MainPipeline, ex))

	recvInj := &RemoteExchangeInjector{Transport: hub.Node("cn2"), LocalNode: "cn2", RecvTimeout: 5 * time.Second}
	rr := NewPipelineBuildResult()
	require.NoError(t, recvInj.InjectSource(ctx, rr.MainPipeline, ex, 1))
	c := output.NewCollector()
	require.NoError(t, rr.MainPipeline.AddSink(c.NewProcessor))

	sq := NewQuery(sr, RunOptions{MaxThreads: 2})
	rq := NewQuery(rr, RunOptions{MaxThreads: 2})
	require.Error(t, RunFragments(ctx, sq, rq))
	require.False(t, c.Done())
}

func TestReceiverCancelledWithoutSender(t *testing.T) {
	hub := exchange.NewLocalHub(4)
	defer hub.Close()
	for i := 0; i < 10; i++ {
		ex := &Exchange{
			FragmentID:  fmt.Sprintf("f%d", i),
			Kind:        exchange.Broadcast,
			Senders:     []string{"cn1"},
			Receivers:   []string{"cn2"},
			SenderLanes: 1,
		}
		inj := &RemoteExchangeInjector{Transport: hub.Node("cn2"), LocalNode: "cn2", RecvTimeout: time.Minute}
		r := NewPipelineBuildResult()
		require.NoError(t, inj.InjectSource(context.Background(), r.MainPipeline, ex, 1))
		c := output.NewCollector()
		require.NoError(t, r.MainPipeline.AddSink(c.NewProcessor))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		err := Run(ctx, r, RunOptions{MaxThreads: 2})
		cancel()
		require.True(t, moerr.IsMoErrCode(err, moerr.ErrQueryInterrupted), "got %v", err)
		require.False(t, c.Done())
	}
}

func TestCrossBoundaryShuffle(t *testing.T) {
	ctx := context.Background()
	hub := exchange.NewLocalHub(exchange.DefaultBufferSize)
	defer hub.Close()
	nodes := []string{"cn1", "cn2"}
	ex := &Exchange{
		FragmentID:  "shuffle",
		Kind:        exchange.RoundRobin,
		Senders:     nodes,
		Receivers:   nodes,
		SenderLanes: 1,
	}

	var queries []*Query
	var collectors []*output.Collector
	for i, node := range nodes {
		inj := &RemoteExchangeInjector{Transport: hub.Node(node), LocalNode: node}
		r := senderResult(t, int64(i*1000))
		r.ExchangeInjector = inj
		q, err := CrossBoundary(ctx, inj, r.MainPipeline, ex, 2)
		require.NoError(t, err)
		require.NotSame(t, r.MainPipeline, q)
		c := output.NewCollector()
		require.NoError(t, q.AddSink(c.NewProcessor))
		r.AddSourcePipeline(r.MainPipeline)
		r.MainPipeline = q
		collectors = append(collectors, c)
		queries = append(queries, NewQuery(r, RunOptions{MaxThreads: 4}))
	}

	require.NoError(t, RunFragments(ctx, queries...))
	var rows []string
	for _, c := range collectors {
		require.True(t, c.Done())
		rows = append(rows, testutil.Rows(c.Batches())...)
	}
	require.Len(t, rows, 120)
}
