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
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"
)

func TestLoadProbeConfig(t *testing.T) {
	convey.Convey("load a partial toml file over the defaults", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "probe.toml")
		content := `
batch-size = 4096
hashmap-prefetch-dist = 8

[log]
level = "debug"
`
		convey.So(os.WriteFile(path, []byte(content), 0o644), convey.ShouldBeNil)

		cfg, err := Load(path)
		convey.So(err, convey.ShouldBeNil)
		convey.So(cfg.BatchSize, convey.ShouldEqual, 4096)
		convey.So(cfg.HashMapPrefetchDist, convey.ShouldEqual, 8)
		convey.So(cfg.PreSerializeKeysLimitBytes, convey.ShouldEqual, 16<<20)
		convey.So(cfg.ProbeSideExplodeRate, convey.ShouldEqual, 3)
		convey.So(cfg.Log.Level, convey.ShouldEqual, "debug")
	})

	convey.Convey("missing file returns an error", t, func() {
		_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
		convey.So(err, convey.ShouldNotBeNil)
	})

	convey.Convey("defaults are sane", t, func() {
		cfg := Default()
		convey.So(cfg.BatchSize, convey.ShouldEqual, 8192)
		convey.So(cfg.HashMapPrefetchDist, convey.ShouldEqual, 16)
	})
}
