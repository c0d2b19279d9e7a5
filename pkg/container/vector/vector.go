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
	"bytes"
	"fmt"

	"github.com/matrixorigin/vecjoin/pkg/common/mpool"
	"github.com/matrixorigin/vecjoin/pkg/container/nulls"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
)

// Vector is a column of values of one type. Fixed-size values live in
// data; var-length values occupy fixed Varlena slots in data whose big
// values spill into area.
type Vector struct {
	typ types.Type

	data []byte
	area []byte

	nsp *nulls.Nulls

	length int

	sorted bool
}

func NewVec(typ types.Type) *Vector {
	return &Vector{
		typ: typ,
		nsp: &nulls.Nulls{},
	}
}

func (v *Vector) GetType() *types.Type {
	return &v.typ
}

func (v *Vector) SetType(typ types.Type) {
	v.typ = typ
}

func (v *Vector) Length() int {
	return v.length
}

func (v *Vector) SetLength(n int) {
	v.length = n
}

func (v *Vector) GetNulls() *nulls.Nulls {
	return v.nsp
}

func (v *Vector) SetNulls(nsp *nulls.Nulls) {
	v.nsp = nsp
}

func (v *Vector) GetSorted() bool {
	return v.sorted
}

func (v *Vector) SetSorted(b bool) {
	v.sorted = b
}

func (v *Vector) Size() int {
	return cap(v.data) + cap(v.area)
}

func (v *Vector) GetArea() []byte {
	return v.area
}

func (v *Vector) IsNull(i uint64) bool {
	return v.nsp.Contains(i)
}

func (v *Vector) Free(mp *mpool.MPool) {
	if v.data != nil {
		mp.Free(v.data)
		v.data = nil
	}
	if v.area != nil {
		mp.Free(v.area)
		v.area = nil
	}
	v.nsp = &nulls.Nulls{}
	v.length = 0
}

func (v *Vector) CleanOnlyData() {
	v.data = v.data[:0]
	v.area = v.area[:0]
	nulls.Reset(v.nsp)
	v.length = 0
}

// MustFixedCol views the vector's values as a typed slice.
func MustFixedCol[T types.FixedSizeT](v *Vector) []T {
	return types.DecodeSlice[T](v.data)[:v.length]
}

// GetFixedAt returns one fixed-size value.
func GetFixedAt[T types.FixedSizeT](v *Vector, idx int) T {
	return MustFixedCol[T](v)[idx]
}

// GetBytesAt returns the bytes of a var-length value.
func (v *Vector) GetBytesAt(i int) []byte {
	va := MustFixedCol[types.Varlena](v)
	return va[i].GetByteSlice(v.area)
}

func (v *Vector) GetStringAt(i int) string {
	return string(v.GetBytesAt(i))
}

func (v *Vector) typeSize() int {
	return v.typ.TypeSize()
}

func (v *Vector) extend(rows int, mp *mpool.MPool) error {
	sz := v.typeSize()
	need := (v.length + rows) * sz
	if need <= cap(v.data) {
		v.data = v.data[:need]
		return nil
	}
	growTo := cap(v.data) * 2
	if growTo < need {
		growTo = need
	}
	data, err := mp.Grow(v.data, growTo)
	if err != nil {
		return err
	}
	v.data = data[:need]
	return nil
}

// PreExtend reserves capacity for rows more values.
func (v *Vector) PreExtend(rows int, mp *mpool.MPool) error {
	oldLen := len(v.data)
	if err := v.extend(rows, mp); err != nil {
		return err
	}
	v.data = v.data[:oldLen]
	return nil
}

func (v *Vector) appendArea(data []byte, mp *mpool.MPool) (types.Varlena, error) {
	var va types.Varlena
	if len(data) <= types.VarlenaInlineSize {
		va.SetSmall(data)
		return va, nil
	}
	need := len(v.area) + len(data)
	if need > cap(v.area) {
		growTo := cap(v.area) * 2
		if growTo < need {
			growTo = need
		}
		area, err := mp.Grow(v.area, growTo)
		if err != nil {
			return va, err
		}
		v.area = area[:len(v.area)]
	}
	offset := len(v.area)
	v.area = append(v.area, data...)
	va.SetOffsetLen(uint32(offset), uint32(len(data)))
	return va, nil
}

// Append adds one fixed-size value.
func Append[T types.FixedSizeT](v *Vector, val T, isNull bool, mp *mpool.MPool) error {
	if err := v.extend(1, mp); err != nil {
		return err
	}
	if isNull {
		v.nsp.Set(uint64(v.length))
	} else {
		col := types.DecodeSlice[T](v.data)
		col[v.length] = val
	}
	v.length++
	return nil
}

// AppendBytes adds one var-length value.
func AppendBytes(v *Vector, val []byte, isNull bool, mp *mpool.MPool) error {
	if err := v.extend(1, mp); err != nil {
		return err
	}
	if isNull {
		v.nsp.Set(uint64(v.length))
	} else {
		va, err := v.appendArea(val, mp)
		if err != nil {
			return err
		}
		col := types.DecodeSlice[types.Varlena](v.data)
		col[v.length] = va
	}
	v.length++
	return nil
}

func AppendStringList(v *Vector, vals []string, isNulls []bool, mp *mpool.MPool) error {
	for i, val := range vals {
		isNull := len(isNulls) > i && isNulls[i]
		if err := AppendBytes(v, []byte(val), isNull, mp); err != nil {
			return err
		}
	}
	return nil
}

func AppendList[T types.FixedSizeT](v *Vector, vals []T, isNulls []bool, mp *mpool.MPool) error {
	for i, val := range vals {
		isNull := len(isNulls) > i && isNulls[i]
		if err := Append(v, val, isNull, mp); err != nil {
			return err
		}
	}
	return nil
}

// UnionNull appends one null row.
func (v *Vector) UnionNull(mp *mpool.MPool) error {
	if err := v.extend(1, mp); err != nil {
		return err
	}
	v.nsp.Set(uint64(v.length))
	v.length++
	return nil
}

// UnionManyNulls appends cnt null rows.
func (v *Vector) UnionManyNulls(cnt int, mp *mpool.MPool) error {
	if cnt <= 0 {
		return nil
	}
	if err := v.extend(cnt, mp); err != nil {
		return err
	}
	nulls.AddRange(v.nsp, uint64(v.length), uint64(v.length+cnt))
	v.length += cnt
	return nil
}

// UnionOne appends w's row sel.
func (v *Vector) UnionOne(w *Vector, sel int64, mp *mpool.MPool) error {
	if w.nsp.Contains(uint64(sel)) {
		return v.UnionNull(mp)
	}
	if v.typ.IsVarlen() {
		return AppendBytes(v, w.GetBytesAt(int(sel)), false, mp)
	}
	if err := v.extend(1, mp); err != nil {
		return err
	}
	sz := v.typeSize()
	copy(v.data[v.length*sz:], w.data[int(sel)*sz:(int(sel)+1)*sz])
	v.length++
	return nil
}

// UnionMulti appends w's row sel cnt times.
func (v *Vector) UnionMulti(w *Vector, sel int64, cnt int, mp *mpool.MPool) error {
	for i := 0; i < cnt; i++ {
		if err := v.UnionOne(w, sel, mp); err != nil {
			return err
		}
	}
	return nil
}

// Union gathers w's rows by sels. A negative sel appends a null row.
func (v *Vector) Union(w *Vector, sels []int64, mp *mpool.MPool) error {
	for _, sel := range sels {
		if sel < 0 {
			if err := v.UnionNull(mp); err != nil {
				return err
			}
			continue
		}
		if err := v.UnionOne(w, sel, mp); err != nil {
			return err
		}
	}
	return nil
}

// UnionBatch appends w's rows [offset, offset+cnt), or the flagged
// subset of that range when flags is non-nil.
func (v *Vector) UnionBatch(w *Vector, offset int64, cnt int, flags []uint8, mp *mpool.MPool) error {
	for i := 0; i < cnt; i++ {
		if flags != nil && flags[i] == 0 {
			continue
		}
		if err := v.UnionOne(w, offset+int64(i), mp); err != nil {
			return err
		}
	}
	return nil
}

// Shrink keeps only the rows in sels (or drops them when negate is
// set; sels must then be sorted ascending).
func (v *Vector) Shrink(sels []int64, negate bool) {
	sz := v.typeSize()
	if !negate {
		for i, sel := range sels {
			copy(v.data[i*sz:], v.data[int(sel)*sz:(int(sel)+1)*sz])
		}
		v.nsp = nulls.Filter(v.nsp, sels)
		v.length = len(sels)
		v.data = v.data[:v.length*sz]
		return
	}
	keep := make([]int64, 0, v.length-len(sels))
	selIdx := 0
	for i := 0; i < v.length; i++ {
		if selIdx < len(sels) && int64(i) == sels[selIdx] {
			selIdx++
			continue
		}
		keep = append(keep, int64(i))
	}
	v.Shrink(keep, false)
}

func (v *Vector) String() string {
	var buf bytes.Buffer
	buf.WriteString(v.typ.String())
	buf.WriteString("[")
	for i := 0; i < v.length; i++ {
		if i > 0 {
			buf.WriteString(" ")
		}
		if v.nsp.Contains(uint64(i)) {
			buf.WriteString("null")
			continue
		}
		buf.WriteString(v.rowString(i))
	}
	buf.WriteString("]")
	return buf.String()
}

func (v *Vector) rowString(i int) string {
	switch v.typ.Oid {
	case types.T_bool:
		return fmt.Sprintf("%v", GetFixedAt[bool](v, i))
	case types.T_int8:
		return fmt.Sprintf("%d", GetFixedAt[int8](v, i))
	case types.T_int16:
		return fmt.Sprintf("%d", GetFixedAt[int16](v, i))
	case types.T_int32:
		return fmt.Sprintf("%d", GetFixedAt[int32](v, i))
	case types.T_int64:
		return fmt.Sprintf("%d", GetFixedAt[int64](v, i))
	case types.T_uint8:
		return fmt.Sprintf("%d", GetFixedAt[uint8](v, i))
	case types.T_uint16:
		return fmt.Sprintf("%d", GetFixedAt[uint16](v, i))
	case types.T_uint32:
		return fmt.Sprintf("%d", GetFixedAt[uint32](v, i))
	case types.T_uint64:
		return fmt.Sprintf("%d", GetFixedAt[uint64](v, i))
	case types.T_float32:
		return fmt.Sprintf("%v", GetFixedAt[float32](v, i))
	case types.T_float64:
		return fmt.Sprintf("%v", GetFixedAt[float64](v, i))
	case types.T_char, types.T_varchar, types.T_text:
		return v.GetStringAt(i)
	}
	return "?"
}
