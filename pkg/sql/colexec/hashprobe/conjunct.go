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
	"github.com/matrixorigin/vecjoin/pkg/common/mpool"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
	"github.com/matrixorigin/vecjoin/pkg/sql/colexec"
)

// doOtherJoinConjuncts evaluates the non-equi conjuncts over the
// assembled batch and rewrites the filter and null maps per join
// mode. One probe row's equi matches may span several batches; the
// isAnyProbeMatchRowOutput flag and the prefix/suffix row counts keep
// the per-probe-row decisions coherent across that split.
func (p *Prober) doOtherJoinConjuncts(outBat *batch.Batch, isMarkJoin bool,
	multiMatchedOutputRowCount int, isTheLastSubBlock bool) (*batch.Batch, error) {
	rowCount := outBat.RowCount()
	if rowCount == 0 {
		return outBat, nil
	}
	defer p.jctx.Stats.record(&p.jctx.Stats.OtherConjunctTime)()

	mp := p.jctx.Mp
	otherHit, err := colexec.EvalConjuncts(mp, p.jctx.OtherConjuncts, outBat)
	if err != nil {
		return nil, err
	}

	var filterMap []bool
	switch p.op {
	case LeftOuterJoin, FullOuterJoin:
		filterMap = p.applyOuterConjuncts(outBat, otherHit, rowCount,
			multiMatchedOutputRowCount, isTheLastSubBlock)

	case LeftSemiJoin:
		if filterMap, err = p.applySemiConjuncts(outBat, otherHit, rowCount,
			multiMatchedOutputRowCount, isMarkJoin, mp); err != nil {
			return nil, err
		}

	case LeftAntiJoin, NullAwareLeftAntiJoin:
		if filterMap, err = p.applyAntiConjuncts(outBat, otherHit, rowCount,
			multiMatchedOutputRowCount, isTheLastSubBlock, isMarkJoin, mp); err != nil {
			return nil, err
		}

	case RightSemiJoin, RightAntiJoin:
		// only the visited bits matter; the assembled batch is thrown
		// away and the drain emits the real output
		for i := 0; i < rowCount; i++ {
			*p.visitedMap[i] = *p.visitedMap[i] || otherHit[i] != 0
		}
		outBat.Clean(mp)
		return batch.NewWithSize(0), nil

	case RightOuterJoin:
		filterSize := 0
		for i := 0; i < rowCount; i++ {
			hit := otherHit[i] != 0
			*p.visitedMap[i] = *p.visitedMap[i] || hit
			if hit {
				filterSize++
			}
		}
		flags := p.jctx.TupleIsNullLeftFlags[:0]
		for i := 0; i < filterSize; i++ {
			flags = append(flags, 0)
		}
		p.jctx.TupleIsNullLeftFlags = flags
		filterMap = make([]bool, rowCount)
		for i := range filterMap {
			filterMap[i] = otherHit[i] != 0
		}

	default:
		filterMap = make([]bool, rowCount)
		for i := range filterMap {
			filterMap[i] = otherHit[i] != 0
		}
	}

	return p.compactFiltered(outBat, filterMap, isMarkJoin, mp)
}

// applyOuterConjuncts handles left and full outer joins: every
// other-hit tuple survives, and a probe row all of whose tuples miss
// keeps exactly one null-padded representative.
func (p *Prober) applyOuterConjuncts(outBat *batch.Batch, otherHit []uint8, rowCount,
	multiMatchedOutputRowCount int, isTheLastSubBlock bool) []bool {
	filterMap := make([]bool, rowCount)
	nullMapData := make([]bool, rowCount)

	// non-first sub batch of a probe row split by the previous call
	if p.rowCountFromLastProbe > 0 {
		p.processSplitEqualMatchedTuples(outBat, 0, p.rowCountFromLastProbe,
			otherHit, nullMapData, filterMap)
		if isTheLastSubBlock && !p.isAnyProbeMatchRowOutput {
			// no sibling of the split probe row survived anywhere;
			// emit one null-padded representative
			filterMap[0] = true
			nullMapData[0] = true
		}
	}

	endIdx := rowCount - multiMatchedOutputRowCount
	for i := p.rowCountFromLastProbe; i < endIdx; i++ {
		joinHit := p.visitedMap[i] != nil
		hit := otherHit[i] != 0

		if !hit {
			p.forceRightSideNull(outBat, i)
		}
		nullMapData[i] = !joinHit || !hit

		// Within a run of tuples sharing one probe row every
		// other-hit tuple passes; of the leading misses only the last
		// is kept as the null-padded representative, and that
		// representative is dropped again once any later sibling
		// hits.
		if joinHit {
			*p.visitedMap[i] = *p.visitedMap[i] || hit
			filterMap[i] = hit || !p.sameToPrev[i] || (otherHit[i-1] == 0 && filterMap[i-1])
			if p.sameToPrev[i] && filterMap[i] && otherHit[i-1] == 0 {
				filterMap[i-1] = false
			}
		} else {
			filterMap[i] = true
		}
	}

	// first sub batch of a multi match probe row to be continued in
	// the next call
	if multiMatchedOutputRowCount > 0 {
		p.isAnyProbeMatchRowOutput = false
		p.processSplitEqualMatchedTuples(outBat, rowCount-multiMatchedOutputRowCount,
			multiMatchedOutputRowCount, otherHit, nullMapData, filterMap)
	}

	flags := p.jctx.TupleIsNullRightFlags[:0]
	for i := 0; i < rowCount; i++ {
		if filterMap[i] {
			if nullMapData[i] {
				flags = append(flags, 1)
			} else {
				flags = append(flags, 0)
			}
		}
	}
	p.jctx.TupleIsNullRightFlags = flags
	return filterMap
}

// processSplitEqualMatchedTuples marks the tuples of a sub batch
// continuation purely by their own other-conjunct hit and folds the
// outcome into isAnyProbeMatchRowOutput; representative selection is
// deferred to the split row's last sub batch.
func (p *Prober) processSplitEqualMatchedTuples(outBat *batch.Batch, startRowIdx, rowCount int,
	otherHit []uint8, nullMapData, filterMap []bool) {
	endRowIdx := startRowIdx + rowCount
	anyOutput := false
	for i := startRowIdx; i < endRowIdx; i++ {
		joinHit := p.visitedMap[i] != nil
		hit := otherHit[i] != 0

		if !hit {
			p.forceRightSideNull(outBat, i)
		}
		nullMapData[i] = !joinHit || !hit
		filterMap[i] = hit
		if joinHit {
			*p.visitedMap[i] = *p.visitedMap[i] || hit
		}
		if hit {
			anyOutput = true
		}
	}
	p.isAnyProbeMatchRowOutput = p.isAnyProbeMatchRowOutput || anyOutput
}

func (p *Prober) forceRightSideNull(outBat *batch.Batch, row int) {
	for j := 0; j < p.rightColLen; j++ {
		outBat.Vecs[p.rightColIdx+j].GetNulls().Set(uint64(row))
	}
}

// applySemiConjuncts keeps at most one tuple per probe row: the last
// candidate of the row's run wins once any candidate hits.
func (p *Prober) applySemiConjuncts(outBat *batch.Batch, otherHit []uint8, rowCount,
	multiMatchedOutputRowCount int, isMarkJoin bool, mp *mpool.MPool) ([]bool, error) {
	filterMap := make([]bool, 0, rowCount)

	startRowIdx := 1
	if p.rowCountFromLastProbe > 0 {
		if p.isAnyProbeMatchRowOutput {
			// a tuple of this probe row already went out; swallow the
			// whole continuation
			for i := 0; i < p.rowCountFromLastProbe; i++ {
				filterMap = append(filterMap, false)
			}
			startRowIdx += p.rowCountFromLastProbe
			if p.rowCountFromLastProbe < rowCount {
				filterMap = append(filterMap, otherHit[p.rowCountFromLastProbe] != 0)
			}
		} else {
			filterMap = append(filterMap, otherHit[0] != 0)
		}
	} else {
		filterMap = append(filterMap, otherHit[0] != 0)
	}
	for i := startRowIdx; i < rowCount; i++ {
		if otherHit[i] != 0 || (p.sameToPrev[i] && filterMap[i-1]) {
			filterMap = append(filterMap, true)
			filterMap[i-1] = !p.sameToPrev[i] && filterMap[i-1]
		} else {
			filterMap = append(filterMap, false)
		}
	}

	if multiMatchedOutputRowCount > 0 {
		// if this first sub batch already output the row, the
		// follow-up sub batches must stay silent
		p.isAnyProbeMatchRowOutput = filterMap[rowCount-1]
	} else if p.rowCountFromLastProbe > 0 && !p.isAnyProbeMatchRowOutput {
		if filterMap[p.rowCountFromLastProbe-1] {
			p.isAnyProbeMatchRowOutput = true
		}
	}

	if isMarkJoin {
		if err := p.emitMarkColumn(outBat, filterMap, rowCount, false, mp); err != nil {
			return nil, err
		}
	}
	return filterMap, nil
}

// applyAntiConjuncts keeps a probe row's representative iff no tuple
// of the row passed both conjunct classes.
func (p *Prober) applyAntiConjuncts(outBat *batch.Batch, otherHit []uint8, rowCount,
	multiMatchedOutputRowCount int, isTheLastSubBlock, isMarkJoin bool, mp *mpool.MPool) ([]bool, error) {
	filterMap := make([]bool, rowCount)

	startRowIdx := 1
	if p.rowCountFromLastProbe > 0 && p.isAnyProbeMatchRowOutput {
		for i := 0; i < p.rowCountFromLastProbe; i++ {
			filterMap[i] = false
		}
		startRowIdx += p.rowCountFromLastProbe
		if p.rowCountFromLastProbe < rowCount {
			filterMap[p.rowCountFromLastProbe] =
				otherHit[p.rowCountFromLastProbe] != 0 && p.visitedMap[p.rowCountFromLastProbe] != nil
		}
	} else {
		// both the equi and the other conjuncts accepted
		filterMap[0] = otherHit[0] != 0 && p.visitedMap[0] != nil
	}

	for i := startRowIdx; i < rowCount; i++ {
		if (p.visitedMap[i] != nil && otherHit[i] != 0) || (p.sameToPrev[i] && filterMap[i-1]) {
			filterMap[i] = true
			filterMap[i-1] = !p.sameToPrev[i] && filterMap[i-1]
		} else {
			filterMap[i] = false
		}
	}

	if isMarkJoin {
		if err := p.emitMarkColumn(outBat, filterMap, rowCount, true, mp); err != nil {
			return nil, err
		}
		return filterMap, nil
	}

	endRowIdx := 0
	if p.rowCountFromLastProbe > 0 {
		endRowIdx = rowCount - multiMatchedOutputRowCount
		if !p.isAnyProbeMatchRowOutput {
			if filterMap[p.rowCountFromLastProbe-1] {
				p.isAnyProbeMatchRowOutput = true
				filterMap[p.rowCountFromLastProbe-1] = false
			}
			if isTheLastSubBlock && !p.isAnyProbeMatchRowOutput {
				// the split probe row never matched anywhere; output
				// its representative now
				filterMap[0] = true
			}
		}
		if multiMatchedOutputRowCount > 0 {
			p.isAnyProbeMatchRowOutput = filterMap[rowCount-1]
			filterMap[rowCount-1] = false
		}
	} else if multiMatchedOutputRowCount > 0 {
		endRowIdx = rowCount - multiMatchedOutputRowCount
		p.isAnyProbeMatchRowOutput = filterMap[rowCount-1]
		filterMap[rowCount-1] = false
	} else {
		endRowIdx = rowCount
	}

	// same walk as the semi join, inverting each group's last element
	for i := 1 + p.rowCountFromLastProbe; i < endRowIdx; i++ {
		if !p.sameToPrev[i] {
			filterMap[i-1] = !filterMap[i-1]
		}
	}
	nonSubBlocksMatchedRowCount := rowCount - p.rowCountFromLastProbe - multiMatchedOutputRowCount
	if nonSubBlocksMatchedRowCount > 0 {
		filterMap[endRowIdx-1] = !filterMap[endRowIdx-1]
	}
	return filterMap, nil
}

// emitMarkColumn turns the per-tuple filter map into one boolean per
// probe row group, then promotes every group-last tuple so the mark
// value survives compaction.
func (p *Prober) emitMarkColumn(outBat *batch.Batch, filterMap []bool, rowCount int,
	negate bool, mp *mpool.MPool) error {
	markVec := outBat.Vecs[len(outBat.Vecs)-1]
	push := func(v bool) error {
		if negate {
			v = !v
		}
		// mark values are never null here: null-key probe rows are
		// padded tuples whose filter entry is already false
		return vector.Append(markVec, v, false, mp)
	}
	for i := 1; i < rowCount; i++ {
		if !p.sameToPrev[i] {
			if err := push(filterMap[i-1]); err != nil {
				return err
			}
			filterMap[i-1] = true
		}
	}
	if err := push(filterMap[rowCount-1]); err != nil {
		return err
	}
	filterMap[rowCount-1] = true
	return nil
}

// compactFiltered applies the filter map and trims the column list:
// semi and anti variants keep the probe side only, mark joins keep
// the probe side plus the mark column.
func (p *Prober) compactFiltered(outBat *batch.Batch, filterMap []bool,
	isMarkJoin bool, mp *mpool.MPool) (*batch.Batch, error) {
	sels := make([]int64, 0, len(filterMap))
	for i, keep := range filterMap {
		if keep {
			sels = append(sels, int64(i))
		}
	}

	if isMarkJoin {
		// the mark vector already holds exactly one value per
		// surviving row; shrink the data columns only
		markVec := outBat.Vecs[len(outBat.Vecs)-1]
		dataBat := batch.NewWithSize(0)
		dataBat.Vecs = outBat.Vecs[:len(outBat.Vecs)-1]
		dataBat.SetRowCount(outBat.RowCount())
		dataBat.Shrink(sels, false)
		for _, vec := range dataBat.Vecs[p.rightColIdx:] {
			vec.Free(mp)
		}
		res := batch.NewWithSize(0)
		res.Vecs = append(res.Vecs, dataBat.Vecs[:p.rightColIdx]...)
		res.Vecs = append(res.Vecs, markVec)
		res.SetRowCount(markVec.Length())
		return res, nil
	}

	outBat.Shrink(sels, false)
	if p.op.leftSemiAntiFamily() {
		for _, vec := range outBat.Vecs[p.rightColIdx:] {
			vec.Free(mp)
		}
		outBat.Vecs = outBat.Vecs[:p.rightColIdx]
	}
	return outBat, nil
}
