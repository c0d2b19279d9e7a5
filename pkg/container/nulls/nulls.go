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

// Package nulls wraps the roaring bitmap library. A column's NULL rows
// are the set bits of its Nulls.
package nulls

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/roaring64"
)

type Nulls struct {
	Np *roaring64.Bitmap
}

func NewWithSize(_ int) *Nulls {
	return &Nulls{Np: roaring64.New()}
}

func Build(size int, rows ...uint64) *Nulls {
	nsp := NewWithSize(size)
	Add(nsp, rows...)
	return nsp
}

func (nsp *Nulls) Clone() *Nulls {
	if nsp == nil {
		return nil
	}
	if nsp.Np == nil {
		return &Nulls{}
	}
	return &Nulls{Np: nsp.Np.Clone()}
}

// Any returns true if any bit is set.
func Any(nsp *Nulls) bool {
	if nsp == nil || nsp.Np == nil {
		return false
	}
	return !nsp.Np.IsEmpty()
}

func (nsp *Nulls) Any() bool {
	return Any(nsp)
}

// Contains returns true if the row is null.
func Contains(nsp *Nulls, row uint64) bool {
	return nsp != nil && nsp.Np != nil && nsp.Np.Contains(row)
}

func (nsp *Nulls) Contains(row uint64) bool {
	return Contains(nsp, row)
}

func Add(nsp *Nulls, rows ...uint64) {
	if nsp == nil || len(rows) == 0 {
		return
	}
	if nsp.Np == nil {
		nsp.Np = roaring64.New()
	}
	nsp.Np.AddMany(rows)
}

func (nsp *Nulls) Set(row uint64) {
	Add(nsp, row)
}

func AddRange(nsp *Nulls, start, end uint64) {
	if nsp.Np == nil {
		nsp.Np = roaring64.New()
	}
	nsp.Np.AddRange(start, end)
}

func Del(nsp *Nulls, rows ...uint64) {
	if nsp == nil || nsp.Np == nil {
		return
	}
	for _, row := range rows {
		nsp.Np.Remove(row)
	}
}

func Reset(nsp *Nulls) {
	if nsp.Np != nil {
		nsp.Np.Clear()
	}
}

// Set unions m into nsp.
func Set(nsp, m *Nulls) {
	if m != nil && m.Np != nil {
		if nsp.Np == nil {
			nsp.Np = roaring64.New()
		}
		nsp.Np.Or(m.Np)
	}
}

func (nsp *Nulls) Count() int {
	if nsp == nil || nsp.Np == nil {
		return 0
	}
	return int(nsp.Np.GetCardinality())
}

// Range copies the bits of nsp in [start, end) into m shifted down
// by bias.
func Range(nsp *Nulls, start, end, bias uint64, m *Nulls) *Nulls {
	if nsp == nil || nsp.Np == nil {
		return m
	}
	if m.Np == nil {
		m.Np = roaring64.New()
	}
	for ; start < end; start++ {
		if nsp.Np.Contains(start) {
			m.Np.Add(start - bias)
		}
	}
	return m
}

// Filter rewrites nsp against a selection vector: bit i of the result
// is set iff sels[i] was null. Negative sels never select nulls.
func Filter(nsp *Nulls, sels []int64) *Nulls {
	if nsp == nil || nsp.Np == nil {
		return nsp
	}
	np := roaring64.New()
	for i, sel := range sels {
		if sel >= 0 && nsp.Np.Contains(uint64(sel)) {
			np.Add(uint64(i))
		}
	}
	nsp.Np = np
	return nsp
}

func String(nsp *Nulls) string {
	if nsp == nil || nsp.Np == nil {
		return "[]"
	}
	return fmt.Sprintf("%v", nsp.Np.ToArray())
}

func (nsp *Nulls) ToArray() []uint64 {
	if nsp == nil || nsp.Np == nil {
		return []uint64{}
	}
	return nsp.Np.ToArray()
}
