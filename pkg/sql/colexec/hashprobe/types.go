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

// Package hashprobe is the probe side of the vectorized hash join:
// it streams probe batches against a prebuilt join map and emits
// bounded result batches for every join mode, resuming mid probe row
// when one row's matches overflow a batch.
package hashprobe

import (
	"sync/atomic"
	"time"

	"github.com/matrixorigin/vecjoin/pkg/common/hashmap"
	"github.com/matrixorigin/vecjoin/pkg/common/mpool"
	"github.com/matrixorigin/vecjoin/pkg/config"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
	"github.com/matrixorigin/vecjoin/pkg/logutil"
	"github.com/matrixorigin/vecjoin/pkg/sql/colexec"
)

// JoinOp enumerates the join modes the prober implements.
type JoinOp int

const (
	InnerJoin JoinOp = iota
	LeftOuterJoin
	RightOuterJoin
	FullOuterJoin
	LeftSemiJoin
	LeftAntiJoin
	NullAwareLeftAntiJoin
	RightSemiJoin
	RightAntiJoin
)

func (op JoinOp) String() string {
	switch op {
	case InnerJoin:
		return "inner join"
	case LeftOuterJoin:
		return "left join"
	case RightOuterJoin:
		return "right join"
	case FullOuterJoin:
		return "full join"
	case LeftSemiJoin:
		return "left semi join"
	case LeftAntiJoin:
		return "left anti join"
	case NullAwareLeftAntiJoin:
		return "null aware left anti join"
	case RightSemiJoin:
		return "right semi join"
	case RightAntiJoin:
		return "right anti join"
	}
	return "unknown join"
}

// probeAll modes emit a null-padded tuple for unmatched probe rows.
func (op JoinOp) probeAll() bool {
	return op == LeftOuterJoin || op == FullOuterJoin
}

func (op JoinOp) rightSemiAnti() bool {
	return op == RightSemiJoin || op == RightAntiJoin
}

func (op JoinOp) leftSemiAntiFamily() bool {
	return op == LeftSemiJoin || op == LeftAntiJoin || op == NullAwareLeftAntiJoin
}

func (op JoinOp) leftAntiFamily() bool {
	return op == LeftAntiJoin || op == NullAwareLeftAntiJoin
}

func (op JoinOp) isOuter() bool {
	return op == LeftOuterJoin || op == RightOuterJoin || op == FullOuterJoin
}

// needDrain modes walk the hash table after probe input is exhausted.
func (op JoinOp) needDrain() bool {
	return op == RightOuterJoin || op == FullOuterJoin ||
		op == RightSemiJoin || op == RightAntiJoin
}

// RuntimeStats aggregates the prober's timers and counters.
type RuntimeStats struct {
	SearchHashTableTime  time.Duration
	BuildSideOutputTime  time.Duration
	ProbeSideOutputTime  time.Duration
	OtherConjunctTime    time.Duration
	ProcessHashTableTime time.Duration
	RowsReturned         int64
}

func (stats *RuntimeStats) record(d *time.Duration) func() {
	if stats == nil {
		return func() {}
	}
	start := time.Now()
	return func() { *d += time.Since(start) }
}

func (stats *RuntimeStats) addRowsReturned(n int) {
	if stats != nil {
		stats.RowsReturned += int64(n)
	}
}

// JoinContext wires the prober to its surrounding join node.
type JoinContext struct {
	// BuildBlocks are the immutable build-side column blocks the
	// join map's row refs point into.
	BuildBlocks []*batch.Batch

	// ProbeBatch is the current probe-side input; key columns are
	// addressed by ProbeKeyCols.
	ProbeBatch   *batch.Batch
	ProbeKeyCols []int32

	LeftTypes  []types.Type
	RightTypes []types.Type

	// Output slot flags: unselected columns are filled with nulls
	// instead of gathered.
	LeftOutputFlags  []bool
	RightOutputFlags []bool

	// OtherConjuncts are the non-equi join predicates, evaluated
	// over the assembled output batch.
	OtherConjuncts []colexec.ExpressionExecutor

	// Outer-join null flag columns, one value per surviving output
	// row.
	TupleIsNullLeftFlags  []uint8
	TupleIsNullRightFlags []uint8

	Mp *mpool.MPool

	// ProbeArenaMemoryUsage is credited with key-arena growth.
	ProbeArenaMemoryUsage int64

	Stats *RuntimeStats

	Cfg config.ProbeConfig
}

func (jctx *JoinContext) addArenaUsage(delta int64) {
	atomic.AddInt64(&jctx.ProbeArenaMemoryUsage, delta)
}

// Prober is the probe-side engine of one hash join instance. All
// resume state lives here; one instance is single threaded.
type Prober struct {
	op        JoinOp
	jctx      *JoinContext
	batchSize int

	// state that lives across Process calls
	probeIndex               int
	readyProbe               bool
	probeHashes              []uint64
	rowMatchIter             hashmap.RowRefIter
	isAnyProbeMatchRowOutput bool

	// key encoding
	probeKeys           [][]byte
	serializedKeyBuffer []byte
	serializeArena      keyArena

	// per-call scratch
	buildBlockOffsets []int8
	buildBlockRows    []int32
	probeIndexs       []int32
	visitedMap        []*bool
	sameToPrev        []bool

	rowCountFromLastProbe int
	rightColIdx           int
	rightColLen           int

	// drain state
	tblIter   *hashmap.TableIter
	drainIter hashmap.RowRefIter
	drainLocs []hashmap.RowRef
}

// NewProber builds a prober for one join mode. batchSize caps the
// rows of each output batch; zero takes the configured default.
func NewProber(op JoinOp, jctx *JoinContext, batchSize int) *Prober {
	jctx.Cfg.FillMissing()
	if batchSize <= 0 {
		batchSize = jctx.Cfg.BatchSize
	}
	if batchSize <= 0 {
		batchSize = colexec.DefaultBatchSize
	}
	if jctx.Stats == nil {
		jctx.Stats = &RuntimeStats{}
	}
	return &Prober{
		op:        op,
		jctx:      jctx,
		batchSize: batchSize,
	}
}

// SetProbeBatch installs the next probe batch and rewinds the probe
// cursor. Must not be called while a probe row is suspended.
func (p *Prober) SetProbeBatch(bat *batch.Batch) {
	p.jctx.ProbeBatch = bat
	p.probeIndex = 0
	p.readyProbe = false
	p.rowMatchIter.Reset()
	p.isAnyProbeMatchRowOutput = false
}

// ProbeDone reports whether the current probe batch is fully
// consumed, including any suspended mid-row iterator.
func (p *Prober) ProbeDone(probeRows int) bool {
	return p.probeIndex >= probeRows && !p.rowMatchIter.Ok()
}

// Free releases the prober's arenas.
func (p *Prober) Free() {
	mp := p.jctx.Mp
	if p.serializedKeyBuffer != nil {
		p.jctx.addArenaUsage(-int64(cap(p.serializedKeyBuffer)))
		mp.Free(p.serializedKeyBuffer)
		p.serializedKeyBuffer = nil
	}
	p.serializeArena.free(p.jctx)
}

// LogStats writes the accumulated runtime counters to the log.
func (p *Prober) LogStats() {
	stats := p.jctx.Stats
	if stats == nil {
		return
	}
	logutil.Infof("%s probe: returned %d rows, search %v, build output %v, probe output %v, other conjunct %v, drain %v",
		p.op, stats.RowsReturned, stats.SearchHashTableTime,
		stats.BuildSideOutputTime, stats.ProbeSideOutputTime,
		stats.OtherConjunctTime, stats.ProcessHashTableTime)
}
