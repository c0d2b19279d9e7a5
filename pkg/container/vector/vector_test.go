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

package vector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/vecjoin/pkg/common/mpool"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
)

func TestAppendAndFixedCol(t *testing.T) {
	mp := mpool.MustNewZero()
	vec := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, AppendList(vec, []int64{3, 1, 4}, nil, mp))
	require.NoError(t, Append(vec, int64(0), true, mp))
	require.Equal(t, 4, vec.Length())
	require.Equal(t, []int64{3, 1, 4, 0}, MustFixedCol[int64](vec))
	require.True(t, vec.IsNull(3))
	require.False(t, vec.IsNull(0))
	vec.Free(mp)
	require.Equal(t, int64(0), mp.CurrNB())
}

func TestVarlenaInlineAndArea(t *testing.T) {
	mp := mpool.MustNewZero()
	vec := NewVec(types.New(types.T_varchar, 0, 0))
	long := strings.Repeat("x", 100)
	require.NoError(t, AppendStringList(vec, []string{"short", long}, nil, mp))
	require.Equal(t, "short", vec.GetStringAt(0))
	require.Equal(t, long, vec.GetStringAt(1))
	vec.Free(mp)
}

func TestUnionOneAndNull(t *testing.T) {
	mp := mpool.MustNewZero()
	src := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, AppendList(src, []int64{10, 20, 30}, []bool{false, true, false}, mp))

	dst := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, dst.UnionOne(src, 2, mp))
	require.NoError(t, dst.UnionOne(src, 1, mp))
	require.NoError(t, dst.UnionNull(mp))
	require.Equal(t, 3, dst.Length())
	require.Equal(t, int64(30), MustFixedCol[int64](dst)[0])
	require.True(t, dst.IsNull(1))
	require.True(t, dst.IsNull(2))
}

func TestUnionGatherWithPadding(t *testing.T) {
	mp := mpool.MustNewZero()
	src := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, AppendList(src, []int64{10, 20, 30}, nil, mp))

	dst := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, dst.Union(src, []int64{2, -1, 0}, mp))
	require.Equal(t, 3, dst.Length())
	require.Equal(t, int64(30), MustFixedCol[int64](dst)[0])
	require.True(t, dst.IsNull(1))
	require.Equal(t, int64(10), MustFixedCol[int64](dst)[2])
}

func TestUnionBatchRange(t *testing.T) {
	mp := mpool.MustNewZero()
	src := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, AppendList(src, []int64{1, 2, 3, 4}, nil, mp))

	dst := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, dst.UnionBatch(src, 1, 2, nil, mp))
	require.Equal(t, []int64{2, 3}, MustFixedCol[int64](dst))
}

func TestShrinkKeepsNulls(t *testing.T) {
	mp := mpool.MustNewZero()
	vec := NewVec(types.New(types.T_int64, 0, 0))
	require.NoError(t, AppendList(vec, []int64{1, 2, 3, 4}, []bool{false, true, false, true}, mp))
	vec.Shrink([]int64{1, 2}, false)
	require.Equal(t, 2, vec.Length())
	require.True(t, vec.IsNull(0))
	require.False(t, vec.IsNull(1))
	require.Equal(t, int64(3), MustFixedCol[int64](vec)[1])
}

func TestShrinkVarlen(t *testing.T) {
	mp := mpool.MustNewZero()
	vec := NewVec(types.New(types.T_varchar, 0, 0))
	long := strings.Repeat("b", 50)
	require.NoError(t, AppendStringList(vec, []string{"a", long, "c"}, nil, mp))
	vec.Shrink([]int64{1, 2}, false)
	require.Equal(t, 2, vec.Length())
	require.Equal(t, long, vec.GetStringAt(0))
	require.Equal(t, "c", vec.GetStringAt(1))
}
