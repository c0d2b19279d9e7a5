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
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/vecjoin/pkg/common/moerr"
	"github.com/matrixorigin/vecjoin/pkg/common/mpool"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
)

func makeIntBatch(t *testing.T, mp *mpool.MPool, vals []int64) *batch.Batch {
	vec := vector.NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, vector.AppendList(vec, vals, nil, mp))
	bat := batch.NewWithSize(1)
	bat.Vecs[0] = vec
	bat.SetRowCount(len(vals))
	return bat
}

func TestEvalConjunctsAndsHits(t *testing.T) {
	mp := mpool.MustNewZero()
	bat := makeIntBatch(t, mp, []int64{1, 5, 9})

	ge3 := NewFuncExecutor(func(b *batch.Batch, row int) (bool, bool, error) {
		return vector.MustFixedCol[int64](b.Vecs[0])[row] >= 3, false, nil
	})
	le7 := NewFuncExecutor(func(b *batch.Batch, row int) (bool, bool, error) {
		return vector.MustFixedCol[int64](b.Vecs[0])[row] <= 7, false, nil
	})

	hits, err := EvalConjuncts(mp, []ExpressionExecutor{ge3, le7}, bat)
	require.NoError(t, err)
	require.Equal(t, []uint8{0, 1, 0}, hits)
}

func TestEvalConjunctsNullIsMiss(t *testing.T) {
	mp := mpool.MustNewZero()
	bat := makeIntBatch(t, mp, []int64{1, 2})

	nullOnFirst := NewFuncExecutor(func(_ *batch.Batch, row int) (bool, bool, error) {
		return true, row == 0, nil
	})
	hits, err := EvalConjuncts(mp, []ExpressionExecutor{nullOnFirst}, bat)
	require.NoError(t, err)
	require.Equal(t, []uint8{0, 1}, hits)
}

func TestEvalConjunctsPropagatesError(t *testing.T) {
	mp := mpool.MustNewZero()
	bat := makeIntBatch(t, mp, []int64{1})

	boom := errors.New("boom")
	failing := NewFuncExecutor(func(*batch.Batch, int) (bool, bool, error) {
		return false, false, boom
	})
	_, err := EvalConjuncts(mp, []ExpressionExecutor{failing}, bat)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrExprEval))
	require.ErrorIs(t, err, boom)
}

func TestColumnExecutor(t *testing.T) {
	mp := mpool.MustNewZero()
	bat := makeIntBatch(t, mp, []int64{4, 2})
	exec := NewColumnExecutor(0)
	vec, err := exec.Eval(mp, []*batch.Batch{bat})
	require.NoError(t, err)
	require.Equal(t, []int64{4, 2}, vector.MustFixedCol[int64](vec))

	_, err = NewColumnExecutor(3).Eval(mp, []*batch.Batch{bat})
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
}
