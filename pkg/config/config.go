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
	"github.com/BurntSushi/toml"

	"github.com/matrixorigin/vecjoin/pkg/logutil"
)

// ProbeConfig carries the probe engine's tuning knobs. None of them
// change output, only performance.
type ProbeConfig struct {
	// BatchSize caps the rows of one output batch.
	BatchSize int `toml:"batch-size"`

	// PreSerializeKeysLimitBytes switches key encoding from the
	// fixed-stride reusable buffer to per-row arena allocation when
	// the estimated total exceeds it.
	PreSerializeKeysLimitBytes int `toml:"pre-serialize-keys-limit-bytes"`

	// HashMapPrefetchDist is how many probe rows ahead bucket
	// prefetch hints are issued.
	HashMapPrefetchDist int `toml:"hashmap-prefetch-dist"`

	// ProbeSideExplodeRate sizes scratch reservations as a multiple
	// of the batch size.
	ProbeSideExplodeRate int `toml:"probe-side-explode-rate"`

	Log logutil.LogConfig `toml:"log"`
}

func Default() ProbeConfig {
	return ProbeConfig{
		BatchSize:                  8192,
		PreSerializeKeysLimitBytes: 16 << 20,
		HashMapPrefetchDist:        16,
		ProbeSideExplodeRate:       3,
	}
}

// Load reads a toml file over the defaults.
func Load(path string) (ProbeConfig, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	cfg.FillMissing()
	return cfg, nil
}

// FillMissing replaces unset knobs with their defaults.
func (cfg *ProbeConfig) FillMissing() {
	def := Default()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PreSerializeKeysLimitBytes <= 0 {
		cfg.PreSerializeKeysLimitBytes = def.PreSerializeKeysLimitBytes
	}
	if cfg.HashMapPrefetchDist <= 0 {
		cfg.HashMapPrefetchDist = def.HashMapPrefetchDist
	}
	if cfg.ProbeSideExplodeRate <= 0 {
		cfg.ProbeSideExplodeRate = def.ProbeSideExplodeRate
	}
}
