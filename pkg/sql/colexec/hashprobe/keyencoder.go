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

package hashprobe

import (
	"github.com/matrixorigin/vecjoin/pkg/common/hashmap"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/nulls"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
)

// keyArena backs the per-row key allocations of oversized probe
// batches; it is cleared at the start of each encoding run.
type keyArena struct {
	blocks [][]byte
	size   int64
}

func (a *keyArena) alloc(p *Prober, n int) ([]byte, error) {
	block, err := p.jctx.Mp.Alloc(n)
	if err != nil {
		return nil, err
	}
	a.blocks = append(a.blocks, block)
	a.size += int64(n)
	return block[:0], nil
}

func (a *keyArena) clear(p *Prober) {
	for _, block := range a.blocks {
		p.jctx.Mp.Free(block)
	}
	a.blocks = a.blocks[:0]
	a.size = 0
}

func (a *keyArena) free(jctx *JoinContext) {
	for _, block := range a.blocks {
		jctx.Mp.Free(block)
	}
	a.blocks = nil
	jctx.addArenaUsage(-a.size)
	a.size = 0
}

// maxOneRowByteSize estimates the widest serialized key of the batch.
func (p *Prober) maxOneRowByteSize() int {
	bat := p.jctx.ProbeBatch
	size := 0
	for _, pos := range p.jctx.ProbeKeyCols {
		vec := bat.Vecs[pos]
		if vec.GetType().IsVarlen() {
			maxLen := 0
			for i := 0; i < vec.Length(); i++ {
				if vec.GetNulls().Contains(uint64(i)) {
					continue
				}
				if n := len(vec.GetBytesAt(i)); n > maxLen {
					maxLen = n
				}
			}
			size += 1 + 4 + maxLen
		} else {
			size += 1 + vec.GetType().TypeSize()
		}
	}
	return size
}

// encodeProbeKeys materializes the probe keys for the current batch,
// choosing between the reusable fixed-stride buffer and per-row arena
// allocation by estimated total size. Fixed-width composite keys skip
// serialization entirely and pack into integer words.
func (p *Prober) encodeProbeKeys(ht hashmap.JoinMap, probeRows int) error {
	if cap(p.probeKeys) < probeRows {
		p.probeKeys = make([][]byte, probeRows)
	}
	p.probeKeys = p.probeKeys[:probeRows]

	if ht.KeyMode() == hashmap.KeyFixed {
		return p.packProbeKeys(probeRows)
	}

	maxOneRow := p.maxOneRowByteSize()
	totalBytes := maxOneRow * probeRows

	if totalBytes > p.jctx.Cfg.PreSerializeKeysLimitBytes {
		// a single very long string row can blow the estimate up;
		// fall back to per-row allocations that are dropped after
		// this batch
		oldUsage := p.serializeArena.size
		p.serializeArena.clear(p)
		bat := p.jctx.ProbeBatch
		for i := 0; i < probeRows; i++ {
			row, err := p.serializeArena.alloc(p, maxOneRow)
			if err != nil {
				return err
			}
			p.probeKeys[i] = hashmap.EncodeJoinKey(row, bat, p.jctx.ProbeKeyCols, i)
		}
		p.jctx.addArenaUsage(p.serializeArena.size - oldUsage)
		return nil
	}

	if p.serializeArena.size > 0 {
		p.jctx.addArenaUsage(-p.serializeArena.size)
		p.serializeArena.clear(p)
	}

	if totalBytes > cap(p.serializedKeyBuffer) {
		p.jctx.addArenaUsage(-int64(cap(p.serializedKeyBuffer)))
		buf, err := p.jctx.Mp.Grow(p.serializedKeyBuffer, totalBytes)
		if err != nil {
			return err
		}
		p.serializedKeyBuffer = buf
		p.jctx.addArenaUsage(int64(cap(p.serializedKeyBuffer)))
	}

	buf := p.serializedKeyBuffer[:cap(p.serializedKeyBuffer)]
	for i := 0; i < probeRows; i++ {
		start := i * maxOneRow
		p.probeKeys[i] = buf[start:start:(start + maxOneRow)]
	}
	bat := p.jctx.ProbeBatch
	for _, pos := range p.jctx.ProbeKeyCols {
		vec := bat.Vecs[pos]
		for i := 0; i < probeRows; i++ {
			p.probeKeys[i] = hashmap.EncodeKeyColumn(p.probeKeys[i], vec, i)
		}
	}
	return nil
}

// packProbeKeys writes each row's fixed-width key columns into an
// 8-byte word slot of the reusable buffer.
func (p *Prober) packProbeKeys(probeRows int) error {
	const stride = 8
	need := probeRows * stride
	if need > cap(p.serializedKeyBuffer) {
		p.jctx.addArenaUsage(-int64(cap(p.serializedKeyBuffer)))
		buf, err := p.jctx.Mp.Grow(p.serializedKeyBuffer, need)
		if err != nil {
			return err
		}
		p.serializedKeyBuffer = buf
		p.jctx.addArenaUsage(int64(cap(p.serializedKeyBuffer)))
	}
	buf := p.serializedKeyBuffer[:need]
	words := types.DecodeSlice[uint64](buf)
	bat := p.jctx.ProbeBatch
	for i := 0; i < probeRows; i++ {
		if probeKeyHasNull(bat, p.jctx.ProbeKeyCols, i) {
			words[i] = 0
		} else {
			words[i] = hashmap.PackJoinKey(bat, p.jctx.ProbeKeyCols, i)
		}
		p.probeKeys[i] = buf[i*stride : (i+1)*stride]
	}
	return nil
}

func probeKeyHasNull(bat *batch.Batch, keyCols []int32, row int) bool {
	for _, pos := range keyCols {
		if bat.Vecs[pos].GetNulls().Contains(uint64(row)) {
			return true
		}
	}
	return false
}

// probeHash precomputes the bucket hash of every non-null probe row
// once per probe batch.
func (p *Prober) probeHash(ht hashmap.JoinMap, nullMap *nulls.Nulls, needNullMap bool, probeRows int) {
	if p.readyProbe {
		return
	}
	defer p.jctx.Stats.record(&p.jctx.Stats.SearchHashTableTime)()
	if cap(p.probeHashes) < probeRows {
		p.probeHashes = make([]uint64, probeRows)
	}
	p.probeHashes = p.probeHashes[:probeRows]
	for k := 0; k < probeRows; k++ {
		if needNullMap && nullMap.Contains(uint64(k)) {
			continue
		}
		p.probeHashes[k] = ht.Hash(p.probeKeys[k])
	}
	p.readyProbe = true
}

// BuildProbeNullMap collects the probe rows whose key has a null,
// the null map Process consumes under needNullMap.
func BuildProbeNullMap(bat *batch.Batch, keyCols []int32) *nulls.Nulls {
	nsp := &nulls.Nulls{}
	for _, pos := range keyCols {
		nulls.Set(nsp, bat.Vecs[pos].GetNulls())
	}
	return nsp
}
