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
	"sort"

	"github.com/matrixorigin/vecjoin/pkg/common/hashmap"
	"github.com/matrixorigin/vecjoin/pkg/common/moerr"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
)

// ProcessDataInHashTable walks the hash table once probe input is
// exhausted and emits the build rows the mode still owes: unmatched
// rows for right outer, full outer and right anti, matched rows for
// right semi. Each call returns at most batchSize rows; eos turns
// true when the traversal completes, and further calls return empty
// batches with eos still true.
func (p *Prober) ProcessDataInHashTable(ht hashmap.JoinMap) (*batch.Batch, bool, error) {
	if ht.Kind() == hashmap.Plain {
		return nil, false, moerr.NewInvalidArgNoCtx("row list flavor for hash table drain", ht.Kind())
	}
	if !p.op.needDrain() {
		return nil, false, moerr.NewInvalidArgNoCtx("hash table drain mode", p.op.String())
	}
	defer p.jctx.Stats.record(&p.jctx.Stats.ProcessHashTableTime)()

	if p.tblIter == nil {
		p.tblIter = ht.NewTableIter()
	}

	hasOther := len(p.jctx.OtherConjuncts) > 0
	rightSemiAntiWithoutOther := p.op.rightSemiAnti() && !hasOther
	rightColIdx := 0
	if !rightSemiAntiWithoutOther {
		rightColIdx = len(p.jctx.LeftTypes)
	}
	rightColLen := len(p.jctx.RightTypes)
	wantVisited := p.op == RightSemiJoin

	p.drainLocs = p.drainLocs[:0]

	// finish the key suspended by the previous call first
	if p.drainIter.Ok() {
		if ht.Kind() == hashmap.WithFlag {
			for p.drainIter.Ok() && len(p.drainLocs) < p.batchSize {
				p.drainLocs = append(p.drainLocs, hashmap.RowRef{
					BlockOffset: p.drainIter.BlockOffset(), RowNum: p.drainIter.RowNum()})
				p.drainIter.Next()
			}
		} else {
			for p.drainIter.Ok() && len(p.drainLocs) < p.batchSize {
				if p.drainIter.Visited() == wantVisited {
					p.drainLocs = append(p.drainLocs, hashmap.RowRef{
						BlockOffset: p.drainIter.BlockOffset(), RowNum: p.drainIter.RowNum()})
				}
				p.drainIter.Next()
			}
		}
		if !p.drainIter.Ok() {
			p.tblIter.Next()
		}
	}

	for p.tblIter.Ok() && len(p.drainLocs) < p.batchSize {
		list := p.tblIter.List()
		if ht.Kind() == hashmap.WithFlag {
			if list.KeyVisited() == wantVisited {
				p.drainIter = list.Begin()
				for p.drainIter.Ok() && len(p.drainLocs) < p.batchSize {
					p.drainLocs = append(p.drainLocs, hashmap.RowRef{
						BlockOffset: p.drainIter.BlockOffset(), RowNum: p.drainIter.RowNum()})
					p.drainIter.Next()
				}
				if p.drainIter.Ok() {
					// batch full mid key; resume here next call
					break
				}
			}
		} else {
			p.drainIter = list.Begin()
			for p.drainIter.Ok() && len(p.drainLocs) < p.batchSize {
				if p.drainIter.Visited() == wantVisited {
					p.drainLocs = append(p.drainLocs, hashmap.RowRef{
						BlockOffset: p.drainIter.BlockOffset(), RowNum: p.drainIter.RowNum()})
				}
				p.drainIter.Next()
			}
			if p.drainIter.Ok() {
				break
			}
		}
		p.tblIter.Next()
	}

	blockSize := len(p.drainLocs)
	mp := p.jctx.Mp

	outBat := p.newDrainBatch(rightSemiAntiWithoutOther)

	// batch the gathers per build block
	blocks := p.jctx.BuildBlocks
	if len(blocks) > 1 {
		sort.SliceStable(p.drainLocs, func(i, j int) bool {
			return p.drainLocs[i].BlockOffset > p.drainLocs[j].BlockOffset
		})
		start := 0
		for start < blockSize {
			end := start
			for end < blockSize && p.drainLocs[end].BlockOffset == p.drainLocs[start].BlockOffset {
				end++
			}
			offset := p.drainLocs[start].BlockOffset
			sels := make([]int64, 0, end-start)
			for i := start; i < end; i++ {
				sels = append(sels, int64(p.drainLocs[i].RowNum))
			}
			for j := 0; j < rightColLen; j++ {
				if err := outBat.Vecs[rightColIdx+j].Union(blocks[offset].Vecs[j], sels, mp); err != nil {
					return nil, false, err
				}
			}
			start = end
		}
	} else if len(blocks) == 1 {
		sels := make([]int64, blockSize)
		for i := 0; i < blockSize; i++ {
			sels[i] = int64(p.drainLocs[i].RowNum)
		}
		for j := 0; j < rightColLen; j++ {
			if err := outBat.Vecs[rightColIdx+j].Union(blocks[0].Vecs[j], sels, mp); err != nil {
				return nil, false, err
			}
		}
	}

	// keep the block rectangular when left columns exist but carry no
	// data of their own
	if p.op.rightSemiAnti() && hasOther {
		for i := 0; i < rightColIdx; i++ {
			if err := outBat.Vecs[i].UnionManyNulls(blockSize, mp); err != nil {
				return nil, false, err
			}
		}
	}

	if p.op == RightOuterJoin || p.op == FullOuterJoin {
		for i := 0; i < rightColIdx; i++ {
			if err := outBat.Vecs[i].UnionManyNulls(blockSize, mp); err != nil {
				return nil, false, err
			}
		}
		flags := p.jctx.TupleIsNullLeftFlags[:0]
		for i := 0; i < blockSize; i++ {
			flags = append(flags, 1)
		}
		p.jctx.TupleIsNullLeftFlags = flags
	}

	outBat.SetRowCount(blockSize)
	p.jctx.Stats.addRowsReturned(blockSize)
	eos := !p.tblIter.Ok()
	return outBat, eos, nil
}

func (p *Prober) newDrainBatch(rightSemiAntiWithoutOther bool) *batch.Batch {
	var vecs []*vector.Vector
	if !rightSemiAntiWithoutOther {
		for _, typ := range p.jctx.LeftTypes {
			vecs = append(vecs, vector.NewVec(typ))
		}
	}
	for _, typ := range p.jctx.RightTypes {
		vecs = append(vecs, vector.NewVec(typ))
	}
	bat := batch.NewWithSize(len(vecs))
	bat.Vecs = vecs
	return bat
}
