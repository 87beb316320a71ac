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

package projection

import (
	"bytes"
	"fmt"

	"github.com/matrixorigin/mopipeline/pkg/common/moerr"
	"github.com/matrixorigin/mopipeline/pkg/container/batch"
	"github.com/matrixorigin/mopipeline/pkg/container/vector"
	"github.com/matrixorigin/mopipeline/pkg/sql/colexec"
	"github.com/matrixorigin/mopipeline/pkg/vm/pipeline"
)

const opName = "projection"

var _ colexec.TransformOperator = new(Projection)

// Projection picks and reorders columns. Attrs renames them when set.
type Projection struct {
	Cols  []int32
	Attrs []string
}

func NewArgument(cols []int32, attrs []string) *Projection {
	return &Projection{Cols: cols, Attrs: attrs}
}

func (projection *Projection) String(buf *bytes.Buffer) {
	buf.WriteString(opName)
	buf.WriteString(fmt.Sprintf("(%v)", projection.Cols))
}

func (projection *Projection) Prepare() error {
	if len(projection.Attrs) > 0 && len(projection.Attrs) != len(projection.Cols) {
		return moerr.NewInvalidInputNoCtx("projection of %d columns named with %d attributes",
			len(projection.Cols), len(projection.Attrs))
	}
	return nil
}

func (projection *Projection) Transform(bat *batch.Batch) (*batch.Batch, error) {
	attrs := projection.Attrs
	if len(attrs) == 0 {
		attrs = make([]string, len(projection.Cols))
	}
	vecs := make([]*vector.Vector, len(projection.Cols))
	for i, col := range projection.Cols {
		if int(col) >= len(bat.Vecs) || col < 0 {
			return nil, moerr.NewOutOfRange(moerr.Context(), "column", "%d of %d", col, len(bat.Vecs))
		}
		vecs[i] = bat.Vecs[col]
		if len(projection.Attrs) == 0 && int(col) < len(bat.Attrs) {
			attrs[i] = bat.Attrs[col]
		}
	}
	rbat := batch.NewWithVectors(attrs, vecs...)
	rbat.SetRowCount(bat.RowCount())
	return rbat, nil
}

func NewProcessor(in *pipeline.InputPort, out *pipeline.OutputPort, cols []int32, attrs []string) *colexec.Transformer {
	return colexec.NewTransformer(opName, in, out, NewArgument(cols, attrs))
}
