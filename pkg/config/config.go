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

package config

import (
	"time"

	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/exchange"
	"github.com/matrixorigin/mopipeline/pkg/logutil"
	"github.com/matrixorigin/mopipeline/pkg/sql/compile"
	"github.com/matrixorigin/mopipeline/pkg/vm/executor"
)

var (
	defaultRecvTimeout = time.Minute
	defaultLogLevel    = "info"
	defaultLogFormat   = "console"
)

// Duration is a time.Duration written as "10s" in toml.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the toml configuration of mo-pipeline.
type Config struct {
	Engine   EngineConfig      `toml:"engine"`
	Exchange ExchangeConfig    `toml:"exchange"`
	Log      logutil.LogConfig `toml:"log"`
}

type EngineConfig struct {
	// MaxThreads zero uses the number of cpus.
	MaxThreads int `toml:"max-threads"`
	// SchedulePolicy is fifo or cpu-time.
	SchedulePolicy string `toml:"schedule-policy"`
	// NoProgressLimit negative disables the check.
	NoProgressLimit int `toml:"no-progress-limit"`
}

type ExchangeConfig struct {
	Compress       bool     `toml:"compress"`
	RecvTimeout    Duration `toml:"recv-timeout"`
	SendBufferSize int      `toml:"send-buffer"`
}

// ParseConfigFromFile decodes path and fills in defaults.
func ParseConfigFromFile(path string) (*Config, error) {
	if path == "" {
		return nil, moerr.NewBadConfigNoCtx("config file not specified")
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, moerr.NewBadConfigNoCtx("decode %s: %v", path, err)
	}
	cfg.SetDefaultValue()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseConfig decodes a toml document held in memory.
func ParseConfig(data string) (*Config, error) {
	cfg := &Config{}
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, moerr.NewBadConfigNoCtx("decode config: %v", err)
	}
	cfg.SetDefaultValue()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) SetDefaultValue() {
	if c.Engine.SchedulePolicy == "" {
		c.Engine.SchedulePolicy = executor.ScheduleFIFO.String()
	}
	if c.Exchange.RecvTimeout.Duration == 0 {
		c.Exchange.RecvTimeout.Duration = defaultRecvTimeout
	}
	if c.Exchange.SendBufferSize == 0 {
		c.Exchange.SendBufferSize = exchange.DefaultBufferSize
	}
	if c.Log.Level == "" {
		c.Log.Level = defaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = defaultLogFormat
	}
}

func (c *Config) Validate() error {
	if c.Engine.MaxThreads < 0 {
		return moerr.NewBadConfigNoCtx("engine.max-threads %d", c.Engine.MaxThreads)
	}
	if _, err := executor.ParseSchedulePolicy(c.Engine.SchedulePolicy); err != nil {
		return err
	}
	if c.Exchange.RecvTimeout.Duration < 0 {
		return moerr.NewBadConfigNoCtx("exchange.recv-timeout %s", c.Exchange.RecvTimeout)
	}
	if c.Exchange.SendBufferSize < 0 {
		return moerr.NewBadConfigNoCtx("exchange.send-buffer %d", c.Exchange.SendBufferSize)
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return moerr.NewBadConfigNoCtx("log.format %q", c.Log.Format)
	}
	return nil
}

// RunOptions returns the executor settings of the config.
func (c *Config) RunOptions() compile.RunOptions {
	policy, _ := executor.ParseSchedulePolicy(c.Engine.SchedulePolicy)
	return compile.RunOptions{
		MaxThreads:      c.Engine.MaxThreads,
		Policy:          policy,
		NoProgressLimit: c.Engine.NoProgressLimit,
	}
}

// ExchangeInjector returns the injector node uses on transport.
func (c *Config) ExchangeInjector(transport exchange.Transport, node string) *compile.RemoteExchangeInjector {
	return &compile.RemoteExchangeInjector{
		Transport:   transport,
		LocalNode:   node,
		Compress:    c.Exchange.Compress,
		RecvTimeout: c.Exchange.RecvTimeout.Duration,
	}
}
