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

import (
	"bytes"

	"github.com/cespare/xxhash/v2"

	"github.com/matrixorigin/vecjoin/pkg/common/moerr"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
)

// StrJoinMap indexes build rows by their serialized join key. Buckets
// chain on the 64-bit key hash; membership is verified against the
// stored key bytes.
type StrJoinMap struct {
	kind Kind

	buckets map[uint64][]uint32
	keys    [][]byte
	lists   []*RowRefList

	rowcnt   int64
	keyBytes int64
}

func NewStrJoinMap(kind Kind) *StrJoinMap {
	return &StrJoinMap{
		kind:    kind,
		buckets: make(map[uint64][]uint32),
	}
}

func (m *StrJoinMap) Kind() Kind {
	return m.kind
}

func (m *StrJoinMap) KeyMode() KeyMode {
	return KeySerialized
}

func (m *StrJoinMap) Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

func (m *StrJoinMap) FindWithHash(hash uint64, key []byte) (*RowRefList, bool) {
	for _, slot := range m.buckets[hash] {
		if bytes.Equal(m.keys[slot], key) {
			return m.lists[slot], true
		}
	}
	return nil, false
}

func (m *StrJoinMap) PrefetchHash(hash uint64) {
	// a bucket read is the closest a map gets to a prefetch hint
	_ = m.buckets[hash]
}

// InsertRow appends one build row under key, creating the key's list
// on first sight.
func (m *StrJoinMap) InsertRow(key []byte, blockOffset int8, rowNum int32) {
	hash := m.Hash(key)
	list, ok := m.FindWithHash(hash, key)
	if !ok {
		slot := uint32(len(m.lists))
		kcopy := make([]byte, len(key))
		copy(kcopy, key)
		m.keys = append(m.keys, kcopy)
		list = NewRowRefList(m.kind)
		m.lists = append(m.lists, list)
		m.buckets[hash] = append(m.buckets[hash], slot)
		m.keyBytes += int64(len(key))
	}
	list.AppendRow(blockOffset, rowNum)
	m.rowcnt++
}

func (m *StrJoinMap) GroupCount() uint64 {
	return uint64(len(m.lists))
}

func (m *StrJoinMap) RowCount() int64 {
	return m.rowcnt
}

func (m *StrJoinMap) NewTableIter() *TableIter {
	return &TableIter{lists: m.lists}
}

func (m *StrJoinMap) Size() int64 {
	return m.keyBytes + m.rowcnt*8
}

// IntJoinMap indexes build rows by fixed-width keys packed into one
// 64-bit word; serialization is replaced by bit packing.
type IntJoinMap struct {
	kind Kind

	buckets map[uint64][]uint32
	keys    []uint64
	lists   []*RowRefList

	rowcnt int64
}

func NewIntJoinMap(kind Kind) *IntJoinMap {
	return &IntJoinMap{
		kind:    kind,
		buckets: make(map[uint64][]uint32),
	}
}

func (m *IntJoinMap) Kind() Kind {
	return m.kind
}

func (m *IntJoinMap) KeyMode() KeyMode {
	return KeyFixed
}

func (m *IntJoinMap) Hash(key []byte) uint64 {
	return xxhash.Sum64(key)
}

func (m *IntJoinMap) FindWithHash(hash uint64, key []byte) (*RowRefList, bool) {
	word := types.DecodeFixed[uint64](key)
	for _, slot := range m.buckets[hash] {
		if m.keys[slot] == word {
			return m.lists[slot], true
		}
	}
	return nil, false
}

func (m *IntJoinMap) PrefetchHash(hash uint64) {
	_ = m.buckets[hash]
}

func (m *IntJoinMap) InsertRow(word uint64, blockOffset int8, rowNum int32) {
	key := types.EncodeFixed(word)
	hash := m.Hash(key)
	list, ok := m.FindWithHash(hash, key)
	if !ok {
		slot := uint32(len(m.lists))
		m.keys = append(m.keys, word)
		list = NewRowRefList(m.kind)
		m.lists = append(m.lists, list)
		m.buckets[hash] = append(m.buckets[hash], slot)
	}
	list.AppendRow(blockOffset, rowNum)
	m.rowcnt++
}

func (m *IntJoinMap) GroupCount() uint64 {
	return uint64(len(m.lists))
}

func (m *IntJoinMap) RowCount() int64 {
	return m.rowcnt
}

func (m *IntJoinMap) NewTableIter() *TableIter {
	return &TableIter{lists: m.lists}
}

func (m *IntJoinMap) Size() int64 {
	return int64(len(m.keys))*8 + m.rowcnt*8
}

// BuildStrJoinMap indexes every build block row under its serialized
// key. Rows whose key contains a null are unmatchable by the equi
// conjuncts and are not inserted.
func BuildStrJoinMap(blocks []*batch.Batch, keyCols []int32, kind Kind) (*StrJoinMap, error) {
	if len(blocks) > 127 {
		return nil, moerr.NewInvalidArgNoCtx("build block count", len(blocks))
	}
	m := NewStrJoinMap(kind)
	var key []byte
	for blockOffset, block := range blocks {
		for row := 0; row < block.RowCount(); row++ {
			if keyHasNull(block, keyCols, row) {
				continue
			}
			key = EncodeJoinKey(key[:0], block, keyCols, row)
			m.InsertRow(key, int8(blockOffset), int32(row))
		}
	}
	return m, nil
}

// BuildIntJoinMap is the fixed-width variant; the key columns must be
// non-nullable fixed-size columns packing into 8 bytes.
func BuildIntJoinMap(blocks []*batch.Batch, keyCols []int32, kind Kind) (*IntJoinMap, error) {
	if len(blocks) > 127 {
		return nil, moerr.NewInvalidArgNoCtx("build block count", len(blocks))
	}
	if FixedKeyWidth(blocks[0], keyCols) < 0 {
		return nil, moerr.NewInvalidArgNoCtx("fixed join key columns", keyCols)
	}
	m := NewIntJoinMap(kind)
	for blockOffset, block := range blocks {
		for row := 0; row < block.RowCount(); row++ {
			if keyHasNull(block, keyCols, row) {
				continue
			}
			m.InsertRow(PackJoinKey(block, keyCols, row), int8(blockOffset), int32(row))
		}
	}
	return m, nil
}

func keyHasNull(bat *batch.Batch, keyCols []int32, row int) bool {
	for _, pos := range keyCols {
		if bat.Vecs[pos].GetNulls().Contains(uint64(row)) {
			return true
		}
	}
	return false
}

// FixedKeyWidth returns the packed byte width of the key columns, or
// -1 when the fixed path cannot serve them.
func FixedKeyWidth(bat *batch.Batch, keyCols []int32) int {
	width := 0
	for _, pos := range keyCols {
		typ := bat.Vecs[pos].GetType()
		if typ.IsVarlen() {
			return -1
		}
		width += typ.TypeSize()
	}
	if width > 8 {
		return -1
	}
	return width
}

// EncodeJoinKey appends the serialized key of one row: per column a
// null marker byte, then for non-null values the raw fixed bytes or a
// length-prefixed byte string.
func EncodeJoinKey(dst []byte, bat *batch.Batch, keyCols []int32, row int) []byte {
	for _, pos := range keyCols {
		vec := bat.Vecs[pos]
		dst = EncodeKeyColumn(dst, vec, row)
	}
	return dst
}

// EncodeKeyColumn appends one column's contribution to a serialized
// key. The probe-side key encoder writes the identical format column
// by column.
func EncodeKeyColumn(dst []byte, vec *vector.Vector, row int) []byte {
	if vec.GetNulls().Contains(uint64(row)) {
		return append(dst, 1)
	}
	dst = append(dst, 0)
	if vec.GetType().IsVarlen() {
		bs := vec.GetBytesAt(row)
		dst = append(dst, byte(len(bs)), byte(len(bs)>>8), byte(len(bs)>>16), byte(len(bs)>>24))
		return append(dst, bs...)
	}
	sz := vec.GetType().TypeSize()
	data := vecRawData(vec)
	return append(dst, data[row*sz:(row+1)*sz]...)
}

func vecRawData(vec *vector.Vector) []byte {
	switch vec.GetType().TypeSize() {
	case 1:
		return types.EncodeSlice(vector.MustFixedCol[uint8](vec))
	case 2:
		return types.EncodeSlice(vector.MustFixedCol[uint16](vec))
	case 4:
		return types.EncodeSlice(vector.MustFixedCol[uint32](vec))
	case 8:
		return types.EncodeSlice(vector.MustFixedCol[uint64](vec))
	}
	panic("unsupported fixed key size")
}

// PackJoinKey packs fixed-width key columns into one little-endian
// word at increasing byte offsets.
func PackJoinKey(bat *batch.Batch, keyCols []int32, row int) uint64 {
	var word uint64
	shift := 0
	for _, pos := range keyCols {
		vec := bat.Vecs[pos]
		sz := vec.GetType().TypeSize()
		raw := vecRawData(vec)[row*sz : (row+1)*sz]
		for _, b := range raw {
			word |= uint64(b) << shift
			shift += 8
		}
	}
	return word
}
