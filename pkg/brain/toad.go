/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package brain

import (
	"sort"

	"github.com/chubbymaggie/meister/pkg/jobs"
)

// ToadBrain is the default Brain (spec.md §4.4), named after
// original_source/meister/schedulers/__init__.py's
// `from ..brains.toad import ToadBrain`. It owns a single scoring
// function — a job's own priority, as assigned by its creator — and
// performs a stable sort by that score. There is no streaming
// requirement (spec.md §4.4), so the full input is buffered before
// anything is emitted.
type ToadBrain struct{}

func NewToadBrain() *ToadBrain {
	return &ToadBrain{}
}

// score is the brain's scoring function. It is kept as a named method so
// a future brain variant can override scoring without touching the sort.
func (b *ToadBrain) score(j jobs.Job) float64 {
	return j.Priority
}

func (b *ToadBrain) Sort(in []jobs.Job) []jobs.Candidate {
	out := make([]jobs.Candidate, len(in))
	for i, j := range in {
		out[i] = jobs.Candidate{Job: j, Priority: b.score(j)}
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].Priority > out[k].Priority
	})
	return out
}
