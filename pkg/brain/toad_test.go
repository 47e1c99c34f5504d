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

package brain_test

import (
	"reflect"
	"testing"

	"github.com/chubbymaggie/meister/pkg/brain"
	"github.com/chubbymaggie/meister/pkg/jobs"
)

// Invariant 6 from spec.md §8: the brain's output is non-increasing in
// priority.
func TestToadBrain_NonIncreasingOutput(t *testing.T) {
	in := []jobs.Job{
		{ID: 1, Priority: 10},
		{ID: 2, Priority: 100},
		{ID: 3, Priority: 50},
		{ID: 4, Priority: 50},
		{ID: 5, Priority: 0},
	}
	out := brain.NewToadBrain().Sort(in)
	if len(out) != len(in) {
		t.Fatalf("expected %d candidates, got %d", len(in), len(out))
	}
	for i := 1; i < len(out); i++ {
		if out[i].Priority > out[i-1].Priority {
			t.Fatalf("output not non-increasing at index %d: %v > %v", i, out[i].Priority, out[i-1].Priority)
		}
	}
}

func TestToadBrain_DoesNotMutateInput(t *testing.T) {
	in := []jobs.Job{{ID: 1, Priority: 10}, {ID: 2, Priority: 20}}
	snapshot := append([]jobs.Job(nil), in...)

	_ = brain.NewToadBrain().Sort(in)

	for i := range in {
		if !reflect.DeepEqual(in[i], snapshot[i]) {
			t.Errorf("input job %d mutated: got %+v, want %+v", i, in[i], snapshot[i])
		}
	}
}

func TestToadBrain_StableOnTies(t *testing.T) {
	in := []jobs.Job{
		{ID: 1, Priority: 50},
		{ID: 2, Priority: 50},
		{ID: 3, Priority: 50},
	}
	out := brain.NewToadBrain().Sort(in)
	for i, c := range out {
		if c.Job.ID != in[i].ID {
			t.Errorf("expected stable order to preserve input order on ties, got id %d at index %d", c.Job.ID, i)
		}
	}
}
