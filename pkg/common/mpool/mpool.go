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
	"sync/atomic"

	"github.com/matrixorigin/vecjoin/pkg/common/moerr"
)

// NoFixed means no cap is enforced.
const NoFixed = int64(-1)

// MPool tracks the memory charged to one operator or query. It is an
// accounting pool: allocations come from the Go heap, the pool keeps
// the current and high-water byte counts and enforces an optional cap.
type MPool struct {
	name   string
	cap    int64
	currNB int64
	highNB int64
}

func New(name string, cap int64) *MPool {
	return &MPool{name: name, cap: cap}
}

// MustNewZero returns an uncapped pool for tests and tools.
func MustNewZero() *MPool {
	return New("zero", NoFixed)
}

func (m *MPool) Name() string {
	return m.name
}

func (m *MPool) Cap() int64 {
	return m.cap
}

// CurrNB returns the bytes currently charged to the pool.
func (m *MPool) CurrNB() int64 {
	return atomic.LoadInt64(&m.currNB)
}

func (m *MPool) HighWaterNB() int64 {
	return atomic.LoadInt64(&m.highNB)
}

func (m *MPool) charge(sz int64) error {
	nb := atomic.AddInt64(&m.currNB, sz)
	if m.cap != NoFixed && nb > m.cap {
		atomic.AddInt64(&m.currNB, -sz)
		return moerr.NewOOMNoCtx()
	}
	for {
		high := atomic.LoadInt64(&m.highNB)
		if nb <= high || atomic.CompareAndSwapInt64(&m.highNB, high, nb) {
			return nil
		}
	}
}

// Alloc returns a zeroed byte slice of the given size charged to the
// pool.
func (m *MPool) Alloc(sz int) ([]byte, error) {
	if sz < 0 {
		return nil, moerr.NewInvalidArgNoCtx("mpool alloc size", sz)
	}
	if sz == 0 {
		return nil, nil
	}
	if err := m.charge(int64(sz)); err != nil {
		return nil, err
	}
	return make([]byte, sz), nil
}

// Grow reallocates old to at least sz bytes, copying the prefix.
func (m *MPool) Grow(old []byte, sz int) ([]byte, error) {
	if sz <= cap(old) {
		return old[:sz], nil
	}
	data, err := m.Alloc(sz)
	if err != nil {
		return nil, err
	}
	copy(data, old)
	m.Free(old)
	return data, nil
}

// Free returns the bytes to the pool's account. The slice itself is
// garbage collected.
func (m *MPool) Free(bs []byte) {
	if bs == nil {
		return
	}
	atomic.AddInt64(&m.currNB, -int64(cap(bs)))
}
