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
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
)

// buildSideOutputColumn expands the scratch row coordinates into the
// build-side output columns. Semi and anti joins without other
// conjuncts never output the build side.
func (p *Prober) buildSideOutputColumn(outBat *batch.Batch, size int, hasOtherConjuncts bool) error {
	isSemiAnti := p.op.rightSemiAnti() || p.op.leftSemiAntiFamily()
	if (isSemiAnti && !hasOtherConjuncts) || size == 0 {
		if p.op.probeAll() && !hasOtherConjuncts {
			p.fillRightNullFlags(size)
		}
		return nil
	}
	defer p.jctx.Stats.record(&p.jctx.Stats.BuildSideOutputTime)()

	mp := p.jctx.Mp
	blocks := p.jctx.BuildBlocks
	flags := p.jctx.RightOutputFlags

	if len(blocks) == 1 {
		sels := make([]int64, size)
		for j := 0; j < size; j++ {
			sels[j] = int64(p.buildBlockRows[j])
		}
		for i := 0; i < p.rightColLen; i++ {
			dst := outBat.Vecs[p.rightColIdx+i]
			if flags[i] {
				if err := dst.Union(blocks[0].Vecs[i], sels, mp); err != nil {
					return err
				}
			} else {
				if err := dst.UnionManyNulls(size, mp); err != nil {
					return err
				}
			}
		}
	} else {
		for i := 0; i < p.rightColLen; i++ {
			dst := outBat.Vecs[p.rightColIdx+i]
			if !flags[i] {
				if err := dst.UnionManyNulls(size, mp); err != nil {
					return err
				}
				continue
			}
			for j := 0; j < size; j++ {
				if p.buildBlockOffsets[j] == -1 {
					// an equi miss padded with (-1,-1): outer-join
					// padding or an anti / mark placeholder gets a
					// null build row
					if err := dst.UnionNull(mp); err != nil {
						return err
					}
					continue
				}
				src := blocks[p.buildBlockOffsets[j]].Vecs[i]
				if err := dst.UnionOne(src, int64(p.buildBlockRows[j]), mp); err != nil {
					return err
				}
			}
		}
	}

	if p.op.probeAll() && !hasOtherConjuncts {
		p.fillRightNullFlags(size)
	}
	return nil
}

func (p *Prober) fillRightNullFlags(size int) {
	flags := p.jctx.TupleIsNullRightFlags[:0]
	for i := 0; i < size; i++ {
		if p.buildBlockRows[i] == -1 {
			flags = append(flags, 1)
		} else {
			flags = append(flags, 0)
		}
	}
	p.jctx.TupleIsNullRightFlags = flags
}

// probeSideOutputColumn fills the probe-side output columns, as a
// contiguous range copy when every probe row produced exactly one
// tuple, otherwise as a gather over probeIndexs.
func (p *Prober) probeSideOutputColumn(outBat *batch.Batch, size, lastProbeIndex, probeSize int,
	allMatchOne, hasOtherConjuncts bool) error {
	defer p.jctx.Stats.record(&p.jctx.Stats.ProbeSideOutputTime)()

	mp := p.jctx.Mp
	probeBat := p.jctx.ProbeBatch
	var sels []int64
	if !allMatchOne {
		sels = make([]int64, size)
		for j := 0; j < size; j++ {
			sels[j] = int64(p.probeIndexs[j])
		}
	}
	for i, flag := range p.jctx.LeftOutputFlags {
		dst := outBat.Vecs[i]
		if !flag {
			if err := dst.UnionManyNulls(size, mp); err != nil {
				return err
			}
			continue
		}
		if allMatchOne {
			if err := dst.UnionBatch(probeBat.Vecs[i], int64(lastProbeIndex), probeSize, nil, mp); err != nil {
				return err
			}
		} else {
			if err := dst.Union(probeBat.Vecs[i], sels, mp); err != nil {
				return err
			}
		}
	}

	if p.op == RightOuterJoin && !hasOtherConjuncts {
		flags := p.jctx.TupleIsNullLeftFlags[:0]
		for i := 0; i < size; i++ {
			flags = append(flags, 0)
		}
		p.jctx.TupleIsNullLeftFlags = flags
	}
	return nil
}
