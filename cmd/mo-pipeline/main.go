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

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/matrixorigin/mopipeline/pkg/config"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/logutil"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/group"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/output"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec/valuescan"
	"github.com/matrixorigin/mopipeline/pkg/sql/compile"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
	"github.com/matrixorigin/mopipeline/pkg/vm/process"
)

var (
	configFile = flag.String("cfg", "", "toml configuration of mo-pipeline, defaults are used when empty")
	rows       = flag.Int("rows", 1000, "rows generated per source lane")
	keys       = flag.Int("keys", 10, "distinct group keys")
)

var nodes = []string{"cn1", "cn2"}

const sourceLanes = 2

func main() {
	flag.Parse()

	cfg, err := loadConfig(*configFile)
	if err != nil {
		panic(fmt.Sprintf("failed to parse config from %s, error: %s", *configFile, err.Error()))
	}
	setupLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if err := runShuffleAggregation(ctx, cfg); err != nil {
		logutil.Error("shuffle aggregation failed", zap.Error(err))
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.ParseConfig("")
	}
	return config.ParseConfigFromFile(path)
}

func setupLogger(cfg *config.Config) {
	logutil.SetupMOLogger(&cfg.Log)
}

// runShuffleAggregation runs select k, count(*), sum(v) group by k on two
// local nodes. Each node generates rows, shuffles them by k and aggregates
// the keys it owns.
func runShuffleAggregation(ctx context.Context, cfg *config.Config) error {
	hub := exchange.NewLocalHub(cfg.Exchange.SendBufferSize)
	defer hub.Close()

	ex := &compile.Exchange{
		FragmentID:  "shuffle-agg",
		Kind:        exchange.Hash,
		KeyColumns:  []int32{0},
		Senders:     nodes,
		Receivers:   nodes,
		SenderLanes: sourceLanes,
	}

	queries := make([]*compile.Query, 0, len(nodes))
	collectors := make([]*output.Collector, 0, len(nodes))
	for i, node := range nodes {
		r, c, err := buildNode(ctx, cfg, hub, ex, node, i)
		if err != nil {
			return err
		}
		queries = append(queries, compile.NewQuery(r, cfg.RunOptions()))
		collectors = append(collectors, c)
	}

	if err := compile.RunFragments(ctx, queries...); err != nil {
		return err
	}

	for i, c := range collectors {
		fmt.Printf("node %s:\n", nodes[i])
		for _, bat := range c.Batches() {
			fmt.Print(bat.String())
		}
		fmt.Print(process.String(queries[i].Profiles()))
	}
	return nil
}

func buildNode(ctx context.Context, cfg *config.Config, hub *exchange.LocalHub, ex *compile.Exchange,
	node string, seed int) (*compile.PipelineBuildResult, *output.Collector, error) {
	r := compile.NewPipelineBuildResult()
	r.ExchangeInjector = cfg.ExchangeInjector(hub.Node(node), node)

	producer := pipeline.New()
	lane := 0
	err := producer.AddSource(sourceLanes, func(out *pipeline.OutputPort) (pipeline.Processor, error) {
		lane++
		return valuescan.NewProcessor(out, generate(seed*sourceLanes+lane)), nil
	})
	if err != nil {
		return nil, nil, err
	}

	consumer, err := compile.CrossBoundary(ctx, r.ExchangeInjector, producer, ex, 1)
	if err != nil {
		return nil, nil, err
	}
	err = consumer.AddTransform(func(in *pipeline.InputPort, out *pipeline.OutputPort) (pipeline.Processor, error) {
		return group.NewProcessor(in, out, []int32{0}, []group.Aggregate{
			{Op: group.AggCount, Name: "cnt"},
			{Op: group.AggSum, Col: 1, Name: "total"},
		}), nil
	})
	if err != nil {
		return nil, nil, err
	}
	c := output.NewCollector()
	if err := consumer.AddSink(c.NewProcessor); err != nil {
		return nil, nil, err
	}

	r.AddSourcePipeline(producer)
	r.MainPipeline = consumer
	return r, c, nil
}

func generate(seed int) *batch.Batch {
	n := max(*keys, 1)
	ks := make([]int64, *rows)
	vs := make([]int64, *rows)
	for i := range ks {
		ks[i] = int64((seed + i) % n)
		vs[i] = int64(i)
	}
	return batch.NewWithVectors([]string{"k", "v"},
		vector.NewVecFromSlice(ks),
		vector.NewVecFromSlice(vs))
}
