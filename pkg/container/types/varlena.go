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

package types

import "encoding/binary"

const (
	VarlenaSize       = 24
	VarlenaInlineSize = 23
	varlenaBigHdr     = 0xff
)

// Varlena is the fixed-size slot of a var-length value. Values of up
// to VarlenaInlineSize bytes are stored inline; longer values live in
// the vector's area and the slot records (offset, length).
type Varlena [VarlenaSize]byte

func (v *Varlena) IsSmall() bool {
	return v[0] <= VarlenaInlineSize
}

func (v *Varlena) SetSmall(data []byte) {
	v[0] = byte(len(data))
	copy(v[1:], data)
}

func (v *Varlena) SetOffsetLen(offset, length uint32) {
	v[0] = varlenaBigHdr
	binary.LittleEndian.PutUint32(v[4:8], offset)
	binary.LittleEndian.PutUint32(v[8:12], length)
}

func (v *Varlena) OffsetLen() (uint32, uint32) {
	return binary.LittleEndian.Uint32(v[4:8]), binary.LittleEndian.Uint32(v[8:12])
}

func (v *Varlena) ByteLen() int {
	if v.IsSmall() {
		return int(v[0])
	}
	_, length := v.OffsetLen()
	return int(length)
}

// GetByteSlice returns the value's bytes, resolving big values
// against the given area.
func (v *Varlena) GetByteSlice(area []byte) []byte {
	if v.IsSmall() {
		return v[1 : 1+v[0]]
	}
	offset, length := v.OffsetLen()
	return area[offset : offset+length]
}

// BuildVarlena writes data into area if it does not fit inline and
// returns the filled slot together with the possibly grown area.
func BuildVarlena(data []byte, area []byte) (Varlena, []byte) {
	var v Varlena
	if len(data) <= VarlenaInlineSize {
		v.SetSmall(data)
		return v, area
	}
	offset := len(area)
	area = append(area, data...)
	v.SetOffsetLen(uint32(offset), uint32(len(data)))
	return v, area
}
