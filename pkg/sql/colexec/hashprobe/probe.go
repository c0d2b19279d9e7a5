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
	"github.com/matrixorigin/vecjoin/pkg/common/moerr"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/nulls"
	"github.com/matrixorigin/vecjoin/pkg/container/types"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
)

// Process probes the rows [probeIndex, probeRows) of the current
// probe batch against ht and returns one output batch of at most
// batchSize rows. When a probe row's matches overflow the batch the
// row-list iterator is suspended and the next call resumes it; the
// caller keeps calling until ProbeDone reports true.
//
// needNullMap and ignoreNull select the null-key policy; nullMap
// flags the probe rows whose key contains a null and may be nil when
// needNullMap is false.
func (p *Prober) Process(ht hashmap.JoinMap, nullMap *nulls.Nulls, probeRows int,
	needNullMap, ignoreNull, isMarkJoin, hasOtherConjuncts bool) (*batch.Batch, error) {
	if hasOtherConjuncts {
		if ht.Kind() != hashmap.WithFlags {
			return nil, moerr.NewInvalidArgNoCtx("row list flavor for other conjuncts", ht.Kind())
		}
		if len(p.jctx.OtherConjuncts) == 0 {
			return nil, moerr.NewInvalidArgNoCtx("other conjuncts", "empty conjunct list")
		}
	}
	if isMarkJoin && !p.op.leftSemiAntiFamily() {
		return nil, moerr.NewInvalidArgNoCtx("mark join mode", p.op.String())
	}
	return p.doProcess(ht, nullMap, probeRows, needNullMap, ignoreNull, isMarkJoin, hasOtherConjuncts)
}

func (p *Prober) initProbeSide(ht hashmap.JoinMap, probeRows int, withOtherConjuncts bool) error {
	if p.op.rightSemiAnti() && !withOtherConjuncts {
		p.rightColIdx = 0
	} else {
		p.rightColIdx = len(p.jctx.LeftTypes)
	}
	p.rightColLen = len(p.jctx.RightTypes)
	p.rowCountFromLastProbe = 0

	reserve := p.batchSize * p.jctx.Cfg.ProbeSideExplodeRate
	p.buildBlockOffsets = grow(p.buildBlockOffsets[:0], reserve)
	p.buildBlockRows = grow(p.buildBlockRows[:0], reserve)
	p.probeIndexs = grow(p.probeIndexs[:0], reserve)
	if withOtherConjuncts {
		p.visitedMap = grow(p.visitedMap[:0], reserve)
		p.sameToPrev = grow(p.sameToPrev[:0], reserve)
	}

	if !p.readyProbe {
		if err := p.encodeProbeKeys(ht, probeRows); err != nil {
			return err
		}
	}
	return nil
}

func grow[T any](s []T, capacity int) []T {
	if cap(s) >= capacity {
		return s
	}
	return append(make([]T, 0, capacity), s...)
}

// newOutputBatch lays out the output columns for this call: probe
// columns, then build columns, then the mark column. Semi and anti
// variants drop the side they never output.
func (p *Prober) newOutputBatch(isMarkJoin, hasOtherConjuncts bool) *batch.Batch {
	var vecs []*vector.Vector
	if !(p.op.rightSemiAnti() && !hasOtherConjuncts) {
		for _, typ := range p.jctx.LeftTypes {
			vecs = append(vecs, vector.NewVec(typ))
		}
	}
	if !(p.op.leftSemiAntiFamily() && !hasOtherConjuncts) {
		for _, typ := range p.jctx.RightTypes {
			vecs = append(vecs, vector.NewVec(typ))
		}
	}
	if isMarkJoin {
		vecs = append(vecs, vector.NewVec(types.New(types.T_bool, 0, 0)))
	}
	bat := batch.NewWithSize(len(vecs))
	bat.Vecs = vecs
	return bat
}

func (p *Prober) emplace(blockOffset int8, rowNum int32, currentOffset *int) {
	p.buildBlockOffsets = append(p.buildBlockOffsets, blockOffset)
	p.buildBlockRows = append(p.buildBlockRows, rowNum)
	*currentOffset++
}

// probeRowMatch drains a row-list iterator suspended by the previous
// call before any new probe row is examined. It reports whether a
// suspension existed.
func (p *Prober) probeRowMatch(currentOffset *int, allMatchOne *bool, withOtherConjuncts bool) bool {
	if !p.rowMatchIter.Ok() {
		return false
	}
	defer p.jctx.Stats.record(&p.jctx.Stats.SearchHashTableTime)()
	for ; p.rowMatchIter.Ok() && *currentOffset < p.batchSize; p.rowMatchIter.Next() {
		p.emplace(p.rowMatchIter.BlockOffset(), p.rowMatchIter.RowNum(), currentOffset)
		p.probeIndexs = append(p.probeIndexs, int32(p.probeIndex))
		if withOtherConjuncts {
			p.visitedMap = append(p.visitedMap, p.rowMatchIter.VisitedPtr())
		}
	}
	p.rowCountFromLastProbe = *currentOffset
	*allMatchOne = *allMatchOne && *currentOffset == 1
	if !p.rowMatchIter.Ok() {
		p.probeIndex++
	}
	return true
}

func (p *Prober) doProcess(ht hashmap.JoinMap, nullMap *nulls.Nulls, probeRows int,
	needNullMap, ignoreNull, isMarkJoin, hasOtherConjuncts bool) (*batch.Batch, error) {
	if err := p.initProbeSide(ht, probeRows, hasOtherConjuncts); err != nil {
		return nil, err
	}
	outBat := p.newOutputBatch(isMarkJoin, hasOtherConjuncts)
	var markVec *vector.Vector
	if isMarkJoin {
		markVec = outBat.Vecs[len(outBat.Vecs)-1]
	}

	lastProbeIndex := p.probeIndex
	currentOffset := 0
	allMatchOne := true

	resumed := p.probeRowMatch(&currentOffset, &allMatchOne, hasOtherConjuncts)

	// how many tuples the first sub batch of a to-be-continued multi
	// match probe row contributed
	multiMatchedOutputRowCount := 0
	isTheLastSubBlock := false
	if hasOtherConjuncts && resumed {
		isTheLastSubBlock = !p.rowMatchIter.Ok()
		p.sameToPrev = append(p.sameToPrev, false)
		for i := 0; i < currentOffset-1; i++ {
			p.sameToPrev = append(p.sameToPrev, true)
		}
	}

	p.probeHash(ht, nullMap, needNullMap, probeRows)

	stopSearch := p.jctx.Stats.record(&p.jctx.Stats.SearchHashTableTime)
	prefetchDist := p.jctx.Cfg.HashMapPrefetchDist
	for currentOffset < p.batchSize && p.probeIndex < probeRows {
		if ignoreNull && needNullMap && nullMap.Contains(uint64(p.probeIndex)) {
			if p.op.probeAll() {
				// only left outer and full outer keep an unmatched
				// null-key probe row, padded on the build side
				p.emplace(-1, -1, &currentOffset)
				p.probeIndexs = append(p.probeIndexs, int32(p.probeIndex))
				if hasOtherConjuncts {
					p.sameToPrev = append(p.sameToPrev, false)
					p.visitedMap = append(p.visitedMap, nil)
				}
			} else {
				allMatchOne = false
			}
			p.probeIndex++
			continue
		}

		var list *hashmap.RowRefList
		found := false
		if !(needNullMap && nullMap.Contains(uint64(p.probeIndex))) {
			list, found = ht.FindWithHash(p.probeHashes[p.probeIndex], p.probeKeys[p.probeIndex])
		}
		if next := p.probeIndex + prefetchDist; next < probeRows &&
			!(needNullMap && nullMap.Contains(uint64(next))) {
			ht.PrefetchHash(p.probeHashes[next])
		}

		currentProbeIndex := p.probeIndex
		if !hasOtherConjuncts && p.op.leftSemiAntiFamily() {
			needGoAhead := (p.op == LeftSemiJoin) == found
			if isMarkJoin {
				currentOffset++
				if err := vector.Append(markVec, needGoAhead, false, p.jctx.Mp); err != nil {
					return nil, err
				}
			} else if needGoAhead {
				currentOffset++
			}
			p.probeIndex++
		} else if found {
			originOffset := currentOffset
			if isMarkJoin && hasOtherConjuncts {
				// splitting one probe row's matches across batches is
				// not worth the bookkeeping for mark joins; emit the
				// whole list
				for it := list.Begin(); it.Ok(); it.Next() {
					p.emplace(it.BlockOffset(), it.RowNum(), &currentOffset)
					p.visitedMap = append(p.visitedMap, it.VisitedPtr())
				}
				p.probeIndex++
			} else if hasOtherConjuncts || !p.op.rightSemiAnti() {
				multiMatchLastOffset := currentOffset
				it := list.Begin()
				for ; it.Ok() && currentOffset < p.batchSize; it.Next() {
					p.emplace(it.BlockOffset(), it.RowNum(), &currentOffset)
					if hasOtherConjuncts {
						p.visitedMap = append(p.visitedMap, it.VisitedPtr())
					}
				}
				p.rowMatchIter = it
				if !it.Ok() {
					p.probeIndex++
				} else if hasOtherConjuncts {
					// batch cap hit mid list: probeIndex stays and the
					// remaining matches resume in the next call
					multiMatchedOutputRowCount = currentOffset - multiMatchLastOffset
				}
			} else {
				p.probeIndex++
			}
			if ht.Kind() == hashmap.WithFlag {
				list.MarkKeyVisited()
			}
			if hasOtherConjuncts {
				p.sameToPrev = append(p.sameToPrev, false)
				for i := 0; i < currentOffset-originOffset-1; i++ {
					p.sameToPrev = append(p.sameToPrev, true)
				}
			}
		} else if p.op.probeAll() || p.op.leftAntiFamily() ||
			(p.op == LeftSemiJoin && isMarkJoin) {
			p.emplace(-1, -1, &currentOffset)
			if hasOtherConjuncts {
				p.sameToPrev = append(p.sameToPrev, false)
				p.visitedMap = append(p.visitedMap, nil)
			}
			p.probeIndex++
		} else {
			p.probeIndex++
		}

		allMatchOne = allMatchOne && currentOffset == len(p.probeIndexs)+1
		for len(p.probeIndexs) < currentOffset {
			p.probeIndexs = append(p.probeIndexs, int32(currentProbeIndex))
		}
	}
	probeSize := p.probeIndex - lastProbeIndex
	if p.rowMatchIter.Ok() {
		probeSize++
	}
	stopSearch()

	if err := p.buildSideOutputColumn(outBat, currentOffset, hasOtherConjuncts); err != nil {
		return nil, err
	}
	if hasOtherConjuncts || !p.op.rightSemiAnti() {
		if err := p.probeSideOutputColumn(outBat, currentOffset, lastProbeIndex,
			probeSize, allMatchOne, hasOtherConjuncts); err != nil {
			return nil, err
		}
	}
	outBat.SetRowCount(currentOffset)

	if hasOtherConjuncts {
		var err error
		outBat, err = p.doOtherJoinConjuncts(outBat, isMarkJoin,
			multiMatchedOutputRowCount, isTheLastSubBlock)
		if err != nil {
			return nil, err
		}
	}
	p.jctx.Stats.addRowsReturned(outBat.RowCount())
	return outBat, nil
}
