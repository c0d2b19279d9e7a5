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

package hashmap

// RowRef locates one build row: the build block it lives in and the
// row inside that block. The (-1, -1) pair is the "no build row"
// sentinel used for outer-join padding.
type RowRef struct {
	BlockOffset int8
	RowNum      int32
}

// Kind selects the row-list flavor a join map carries per key.
type Kind uint8

const (
	// Plain lists carry coordinates only.
	Plain Kind = iota
	// WithFlag lists add one visited bit shared by the key.
	WithFlag
	// WithFlags lists add one visited bit per row.
	WithFlags
)

// KeyMode tells the probe side how to encode its keys.
type KeyMode uint8

const (
	// KeySerialized keys are the column-wise serialized bytes.
	KeySerialized KeyMode = iota
	// KeyFixed keys are fixed-width columns packed into one word.
	KeyFixed
)

// RowRefList is the chain of build rows sharing one equi-key.
type RowRefList struct {
	kind Kind
	rows []RowRef

	// visited is the key-level bit of WithFlag lists.
	visited bool
	// rowVisited are the per-row bits of WithFlags lists.
	rowVisited []bool
}

func NewRowRefList(kind Kind) *RowRefList {
	return &RowRefList{kind: kind}
}

func (l *RowRefList) Kind() Kind {
	return l.kind
}

func (l *RowRefList) Len() int {
	return len(l.rows)
}

func (l *RowRefList) At(i int) RowRef {
	return l.rows[i]
}

func (l *RowRefList) AppendRow(blockOffset int8, rowNum int32) {
	l.rows = append(l.rows, RowRef{BlockOffset: blockOffset, RowNum: rowNum})
	if l.kind == WithFlags {
		l.rowVisited = append(l.rowVisited, false)
	}
}

func (l *RowRefList) KeyVisited() bool {
	return l.visited
}

func (l *RowRefList) MarkKeyVisited() {
	l.visited = true
}

func (l *RowRefList) RowVisited(i int) bool {
	return l.rowVisited[i]
}

// RowVisitedPtr exposes the mutable per-row visited bit; the probe
// engine records these pointers and flips them after the other
// conjuncts run.
func (l *RowRefList) RowVisitedPtr(i int) *bool {
	return &l.rowVisited[i]
}

// Begin returns a forward iterator positioned at the first row.
func (l *RowRefList) Begin() RowRefIter {
	return RowRefIter{list: l}
}

// RowRefIter walks a row list. The zero value is exhausted; the probe
// engine suspends and resumes these across calls.
type RowRefIter struct {
	list *RowRefList
	pos  int
}

func (it *RowRefIter) Ok() bool {
	return it.list != nil && it.pos < len(it.list.rows)
}

func (it *RowRefIter) Next() {
	it.pos++
}

func (it *RowRefIter) BlockOffset() int8 {
	return it.list.rows[it.pos].BlockOffset
}

func (it *RowRefIter) RowNum() int32 {
	return it.list.rows[it.pos].RowNum
}

func (it *RowRefIter) Visited() bool {
	return it.list.rowVisited[it.pos]
}

func (it *RowRefIter) VisitedPtr() *bool {
	return &it.list.rowVisited[it.pos]
}

// List returns the underlying row list.
func (it *RowRefIter) List() *RowRefList {
	return it.list
}

// Reset empties the iterator.
func (it *RowRefIter) Reset() {
	it.list = nil
	it.pos = 0
}

// JoinMap is the narrow view of the build-side index the probe engine
// works against. Building the index is the hashbuild side's job.
type JoinMap interface {
	// Kind reports the row-list flavor of every list in the map.
	Kind() Kind
	// KeyMode reports how probe keys must be encoded.
	KeyMode() KeyMode
	// Hash returns the hash of an encoded probe key.
	Hash(key []byte) uint64
	// FindWithHash looks a key up using its precomputed hash.
	FindWithHash(hash uint64, key []byte) (*RowRefList, bool)
	// PrefetchHash hints that the bucket of hash is needed soon.
	PrefetchHash(hash uint64)
	// GroupCount returns the number of distinct keys.
	GroupCount() uint64
	// RowCount returns the number of build rows indexed.
	RowCount() int64
	// NewTableIter starts a full traversal for the unmatched drain.
	NewTableIter() *TableIter
	// Size returns the map's memory footprint estimate.
	Size() int64
}

// TableIter walks every row list of a join map in insertion order.
type TableIter struct {
	lists []*RowRefList
	pos   int
}

func (it *TableIter) Ok() bool {
	return it.pos < len(it.lists)
}

func (it *TableIter) Next() {
	it.pos++
}

func (it *TableIter) List() *RowRefList {
	return it.lists[it.pos]
}
