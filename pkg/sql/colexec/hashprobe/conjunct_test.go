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

package hashprobe

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/vecjoin/pkg/common/hashmap"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
	"github.com/matrixorigin/vecjoin/pkg/sql/colexec"
)

// rightValPred builds an other-conjunct over the build-side value
// column of the testJoin layout (probe key, build key, build value).
func rightValPred(fn func(int64) bool) colexec.ExpressionExecutor {
	return colexec.NewFuncExecutor(func(bat *batch.Batch, row int) (bool, bool, error) {
		vec := bat.Vecs[2]
		if vec.IsNull(uint64(row)) {
			return false, true, nil
		}
		return fn(vector.MustFixedCol[int64](vec)[row]), false, nil
	})
}

func TestLeftOuterWithOtherConjuncts(t *testing.T) {
	tj := newTestJoin(t, LeftOuterJoin, hashmap.WithFlags,
		[]int64{1, 1, 1}, []int64{1, 2, 3}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v >= 2 }),
	}
	out := tj.probe(t, []int64{1, 9}, false, true)
	require.Equal(t, []int64{1, 1, 9}, gatherCol(out, 0))
	require.Equal(t, []int64{2, 3}, gatherCol(out, 2)[:2])
	last := out[len(out)-1]
	// the unmatched probe row survives null padded
	require.True(t, last.Vecs[2].IsNull(uint64(last.RowCount()-1)))
	require.Equal(t, []uint8{0, 0, 1}, tj.jctx.TupleIsNullRightFlags)
}

func TestLeftOuterConjunctRepresentativeSuppressed(t *testing.T) {
	// of a run of leading other-conjunct misses only the last is kept,
	// and it is dropped again once a later sibling hits
	tj := newTestJoin(t, LeftOuterJoin, hashmap.WithFlags,
		[]int64{1, 1, 1}, []int64{5, 6, 20}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v >= 10 }),
	}
	out := tj.probe(t, []int64{1}, false, true)
	require.Equal(t, []int64{1}, gatherCol(out, 0))
	require.Equal(t, []int64{20}, gatherCol(out, 2))
	require.Equal(t, []uint8{0}, tj.jctx.TupleIsNullRightFlags)
}

func TestLeftOuterConjunctAllMissKeepsPaddedRow(t *testing.T) {
	tj := newTestJoin(t, LeftOuterJoin, hashmap.WithFlags,
		[]int64{1, 1}, []int64{5, 6}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v >= 10 }),
	}
	out := tj.probe(t, []int64{1}, false, true)
	require.Equal(t, []int64{1}, gatherCol(out, 0))
	last := out[len(out)-1]
	require.True(t, last.Vecs[2].IsNull(0))
	require.Equal(t, []uint8{1}, tj.jctx.TupleIsNullRightFlags)
}

func TestLeftOuterConjunctSplitAcrossBatches(t *testing.T) {
	// five equi matches, none passing the other conjunct, chunked two
	// per batch: only the final sub batch emits the padded row
	tj := newTestJoin(t, LeftOuterJoin, hashmap.WithFlags,
		[]int64{4, 4, 4, 4, 4}, []int64{1, 1, 1, 1, 1}, 2)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v > 10 }),
	}
	bat := makeBatch(1, makeInt64Vector(t, tj.mp, []int64{4}))
	tj.p.SetProbeBatch(bat)
	var rows []int
	for {
		out, err := tj.p.Process(tj.ht, nil, 1, false, false, false, true)
		require.NoError(t, err)
		rows = append(rows, out.RowCount())
		if tj.p.ProbeDone(1) {
			break
		}
	}
	require.Equal(t, []int{0, 0, 1}, rows)
}

func TestLeftSemiWithOtherConjuncts(t *testing.T) {
	tj := newTestJoin(t, LeftSemiJoin, hashmap.WithFlags,
		[]int64{1, 1, 1}, []int64{1, 2, 3}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v >= 3 }),
	}
	out := tj.probe(t, []int64{1, 9}, false, true)
	require.Equal(t, []int64{1}, gatherCol(out, 0))
	for _, bat := range out {
		if bat.RowCount() > 0 {
			// semi output keeps the probe columns only
			require.Len(t, bat.Vecs, 1)
		}
	}
}

func TestLeftSemiConjunctSplitEmitsOnce(t *testing.T) {
	tj := newTestJoin(t, LeftSemiJoin, hashmap.WithFlags,
		[]int64{4, 4, 4, 4, 4}, []int64{1, 2, 1, 2, 1}, 2)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v == 2 }),
	}
	bat := makeBatch(1, makeInt64Vector(t, tj.mp, []int64{4}))
	tj.p.SetProbeBatch(bat)
	total := 0
	for {
		out, err := tj.p.Process(tj.ht, nil, 1, false, false, false, true)
		require.NoError(t, err)
		total += out.RowCount()
		if tj.p.ProbeDone(1) {
			break
		}
	}
	require.Equal(t, 1, total)
}

func TestLeftAntiWithOtherConjuncts(t *testing.T) {
	// all equi matches fail the other conjunct: the probe row comes
	// back as the single anti representative
	tj := newTestJoin(t, LeftAntiJoin, hashmap.WithFlags,
		[]int64{5, 5, 5}, []int64{1, 2, 3}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v > 10 }),
	}
	out := tj.probe(t, []int64{5}, false, true)
	require.Equal(t, []int64{5}, gatherCol(out, 0))
}

func TestLeftAntiConjunctSplitAcrossBatches(t *testing.T) {
	tj := newTestJoin(t, LeftAntiJoin, hashmap.WithFlags,
		[]int64{5, 5, 5}, []int64{1, 2, 3}, 2)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v > 10 }),
	}
	bat := makeBatch(1, makeInt64Vector(t, tj.mp, []int64{5}))
	tj.p.SetProbeBatch(bat)
	var rows []int
	for {
		out, err := tj.p.Process(tj.ht, nil, 1, false, false, false, true)
		require.NoError(t, err)
		rows = append(rows, out.RowCount())
		if out.RowCount() > 0 {
			require.Equal(t, []int64{5}, col(out, 0))
		}
		if tj.p.ProbeDone(1) {
			break
		}
	}
	require.Equal(t, []int{0, 1}, rows)
}

func TestLeftAntiConjunctMatchedRowSuppressed(t *testing.T) {
	tj := newTestJoin(t, LeftAntiJoin, hashmap.WithFlags,
		[]int64{5, 5}, []int64{1, 20}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v > 10 }),
	}
	out := tj.probe(t, []int64{5, 6}, false, true)
	// probe row 5 really matched (v=20); only the miss row 6 survives
	require.Equal(t, []int64{6}, gatherCol(out, 0))
}

func TestLeftSemiMarkWithOtherConjuncts(t *testing.T) {
	tj := newTestJoin(t, LeftSemiJoin, hashmap.WithFlags,
		[]int64{1, 1, 1}, []int64{1, 2, 3}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v >= 3 }),
	}
	out := tj.probe(t, []int64{1, 9}, true, true)
	require.Len(t, out, 1)
	require.Equal(t, 2, out[0].RowCount())
	require.Equal(t, []int64{1, 9}, col(out[0], 0))
	marks := vector.MustFixedCol[bool](out[0].Vecs[len(out[0].Vecs)-1])
	require.Equal(t, []bool{true, false}, marks)
}

func TestLeftAntiMarkWithOtherConjuncts(t *testing.T) {
	tj := newTestJoin(t, LeftAntiJoin, hashmap.WithFlags,
		[]int64{1, 1}, []int64{1, 20}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v > 10 }),
	}
	out := tj.probe(t, []int64{1, 9}, true, true)
	require.Len(t, out, 1)
	require.Equal(t, 2, out[0].RowCount())
	require.Equal(t, []int64{1, 9}, col(out[0], 0))
	marks := vector.MustFixedCol[bool](out[0].Vecs[len(out[0].Vecs)-1])
	// row 1 matched, so its anti mark is false; row 9 never matched
	require.Equal(t, []bool{false, true}, marks)
}

func TestRightSemiAntiWithOtherConjuncts(t *testing.T) {
	tj := newTestJoin(t, RightAntiJoin, hashmap.WithFlags,
		[]int64{1, 2}, []int64{10, 20}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v >= 15 }),
	}
	out := tj.probe(t, []int64{1, 2}, false, true)
	for _, bat := range out {
		require.Equal(t, 0, bat.RowCount())
	}
	drained, eos, err := tj.p.ProcessDataInHashTable(tj.ht)
	require.NoError(t, err)
	require.True(t, eos)
	// row (1,10) hit the equi key but failed the other conjunct, so
	// it is still unmatched for the right anti drain
	require.Equal(t, 1, drained.RowCount())
	require.Equal(t, []int64{10}, col(drained, 2))
	// left columns are padded to keep the block rectangular
	require.True(t, drained.Vecs[0].IsNull(0))
}

func TestRightOuterWithOtherConjuncts(t *testing.T) {
	tj := newTestJoin(t, RightOuterJoin, hashmap.WithFlags,
		[]int64{1, 2}, []int64{10, 20}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v >= 15 }),
	}
	out := tj.probe(t, []int64{1, 2}, false, true)
	require.Equal(t, []int64{2}, gatherCol(out, 0))
	require.Equal(t, []int64{20}, gatherCol(out, 2))
	require.Equal(t, []uint8{0}, tj.jctx.TupleIsNullLeftFlags)

	drained, eos, err := tj.p.ProcessDataInHashTable(tj.ht)
	require.NoError(t, err)
	require.True(t, eos)
	require.Equal(t, []int64{10}, col(drained, 2))
}

func TestVisitedBitNeedsBothConjuncts(t *testing.T) {
	tj := newTestJoin(t, RightSemiJoin, hashmap.WithFlags,
		[]int64{7, 7}, []int64{1, 20}, 8192)
	tj.jctx.OtherConjuncts = []colexec.ExpressionExecutor{
		rightValPred(func(v int64) bool { return v > 10 }),
	}
	tj.probe(t, []int64{7}, false, true)
	drained, eos, err := tj.p.ProcessDataInHashTable(tj.ht)
	require.NoError(t, err)
	require.True(t, eos)
	// only (7,20) survived both conjunct classes
	require.Equal(t, 1, drained.RowCount())
	require.Equal(t, []int64{20}, col(drained, 2))
}
