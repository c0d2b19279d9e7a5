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

package colexec

import (
	"context"

	"github.com/matrixorigin/vecjoin/pkg/common/moerr"
	"github.com/matrixorigin/vecjoin/pkg/common/mpool"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
)

// ColumnExpressionExecutor yields a column of the first input batch.
type ColumnExpressionExecutor struct {
	pos int32
}

func NewColumnExecutor(pos int32) *ColumnExpressionExecutor {
	return &ColumnExpressionExecutor{pos: pos}
}

func (e *ColumnExpressionExecutor) Eval(_ *mpool.MPool, bats []*batch.Batch) (*vector.Vector, error) {
	if len(bats) == 0 || int(e.pos) >= len(bats[0].Vecs) {
		return nil, moerr.NewInvalidArgNoCtx("column position", e.pos)
	}
	return bats[0].Vecs[e.pos], nil
}

func (e *ColumnExpressionExecutor) Free() {}

// FuncExpressionExecutor evaluates a Go function per row of the first
// input batch, producing a bool vector. The join operators use it for
// their non-equi conjuncts.
type FuncExpressionExecutor struct {
	fn  func(bat *batch.Batch, row int) (value bool, isNull bool, err error)
	vec *vector.Vector
	mp  *mpool.MPool
}

func NewFuncExecutor(fn func(bat *batch.Batch, row int) (bool, bool, error)) *FuncExpressionExecutor {
	return &FuncExpressionExecutor{fn: fn}
}

func (e *FuncExpressionExecutor) Eval(mp *mpool.MPool, bats []*batch.Batch) (*vector.Vector, error) {
	bat := bats[0]
	if e.vec == nil {
		e.vec = vector.NewVec(types.New(types.T_bool, 0, 0))
		e.mp = mp
	} else {
		e.vec.CleanOnlyData()
	}
	for row := 0; row < bat.RowCount(); row++ {
		value, isNull, err := e.fn(bat, row)
		if err != nil {
			return nil, moerr.NewExprEval(context.Background(), err, "%v", err)
		}
		if err := vector.Append(e.vec, value, isNull, mp); err != nil {
			return nil, err
		}
	}
	return e.vec, nil
}

func (e *FuncExpressionExecutor) Free() {
	if e.vec != nil {
		e.vec.Free(e.mp)
		e.vec = nil
	}
}

// EvalConjuncts ANDs a conjunct list over bat into a byte vector:
// hits[i] is 1 iff every conjunct evaluated to non-null true at row i.
func EvalConjuncts(mp *mpool.MPool, executors []ExpressionExecutor, bat *batch.Batch) ([]uint8, error) {
	rowCount := bat.RowCount()
	hits := make([]uint8, rowCount)
	for i := range hits {
		hits[i] = 1
	}
	for _, executor := range executors {
		vec, err := executor.Eval(mp, []*batch.Batch{bat})
		if err != nil {
			return nil, err
		}
		if vec.GetType().Oid != types.T_bool {
			return nil, moerr.NewInternalErrorNoCtx("join conjunct is not boolean")
		}
		col := vector.MustFixedCol[bool](vec)
		nsp := vec.GetNulls()
		for i := 0; i < rowCount; i++ {
			if !col[i] || nsp.Contains(uint64(i)) {
				hits[i] = 0
			}
		}
	}
	return hits, nil
}
