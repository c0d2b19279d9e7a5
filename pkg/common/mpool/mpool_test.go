// Copyright 2021 - 2022 Matrix Origin
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

package mpool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/matrixorigin/vecjoin/pkg/common/moerr"
)

func TestAllocFreeAccounting(t *testing.T) {
	m := MustNewZero()
	bs, err := m.Alloc(100)
	require.NoError(t, err)
	require.Equal(t, 100, len(bs))
	require.Equal(t, int64(100), m.CurrNB())
	m.Free(bs)
	require.Equal(t, int64(0), m.CurrNB())
	require.Equal(t, int64(100), m.HighWaterNB())
}

func TestGrowCopiesPrefix(t *testing.T) {
	m := MustNewZero()
	bs, err := m.Alloc(4)
	require.NoError(t, err)
	copy(bs, []byte{1, 2, 3, 4})
	bs, err = m.Grow(bs, 16)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, bs[:4])
	require.Equal(t, int64(16), m.CurrNB())
	m.Free(bs)
	require.Equal(t, int64(0), m.CurrNB())
}

func TestCapEnforced(t *testing.T) {
	m := New("capped", 64)
	_, err := m.Alloc(65)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	bs, err := m.Alloc(64)
	require.NoError(t, err)
	_, err = m.Alloc(1)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrOOM))
	m.Free(bs)
	_, err = m.Alloc(1)
	require.NoError(t, err)
}

func TestAllocBadSize(t *testing.T) {
	m := MustNewZero()
	_, err := m.Alloc(-1)
	require.True(t, moerr.IsMoErrCode(err, moerr.ErrInvalidArg))
	bs, err := m.Alloc(0)
	require.NoError(t, err)
	require.Nil(t, bs)
}
