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

package colexec

import (
	"github.com/matrixorigin/vecjoin/pkg/common/mpool"
	"github.com/matrixorigin/vecjoin/pkg/container/batch"
	"github.com/matrixorigin/vecjoin/pkg/container/vector"
)

// DefaultBatchSize is the row cap of one output batch.
const DefaultBatchSize = 8192

// ExpressionExecutor evaluates one expression over input batches and
// returns the result vector. The result belongs to the executor and
// is valid until the next Eval or Free.
type ExpressionExecutor interface {
	Eval(mp *mpool.MPool, bats []*batch.Batch) (*vector.Vector, error)
	Free()
}
