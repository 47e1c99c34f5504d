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

package creators

import (
	"context"
	"testing"

	"github.com/chubbymaggie/meister/pkg/jobs"
	"github.com/chubbymaggie/meister/pkg/log"
	"github.com/chubbymaggie/meister/pkg/store"
)

// fakeStore is an in-memory jobStore/rexStore/pollSanitizerStore used to
// test creators without a live Postgres instance.
type fakeStore struct {
	cbns          []store.ChallengeBinaryNode
	unsanitized   []int64
	byHash        map[uint64]jobs.Job
	nextID        int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{byHash: map[uint64]jobs.Job{}}
}

func (f *fakeStore) ListChallengeBinaryNodes(_ context.Context) ([]store.ChallengeBinaryNode, error) {
	return f.cbns, nil
}

func (f *fakeStore) UnsanitizedRawRoundPollIDs(_ context.Context) ([]int64, error) {
	return f.unsanitized, nil
}

func (f *fakeStore) GetJobByPayloadHash(_ context.Context, _ jobs.Kind, hash uint64) (jobs.Job, bool, error) {
	j, ok := f.byHash[hash]
	return j, ok, nil
}

func (f *fakeStore) InsertJob(_ context.Context, j jobs.Job, hash uint64) (jobs.Job, error) {
	f.nextID++
	j.ID = f.nextID
	f.byHash[hash] = j
	return j, nil
}

// Scenario (a) from spec.md §8: one binary with three crashes
// {ip_overwrite, arbitrary_read, null_dereference} yields exactly two
// jobs with priorities 100 and 75; null_dereference is filtered.
func TestRexCreator_PriorityMapping(t *testing.T) {
	fs := newFakeStore()
	fs.cbns = []store.ChallengeBinaryNode{
		{
			ID: 1,
			Crashes: []store.Crash{
				{ID: 10, Kind: CrashIPOverwrite},
				{ID: 11, Kind: CrashArbitraryRead},
				{ID: 12, Kind: CrashNullDereference},
			},
		},
	}

	rc := NewRexCreator(fs, log.NewDevelopment())
	out, err := rc.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(out))
	}

	priorities := map[float64]bool{}
	for _, j := range out {
		priorities[j.Priority] = true
		if j.LimitCPU == nil || *j.LimitCPU != rexLimitCPU {
			t.Errorf("expected limit_cpu %v, got %v", rexLimitCPU, j.LimitCPU)
		}
		if j.LimitMemory == nil || *j.LimitMemory != rexLimitMemoryMiB {
			t.Errorf("expected limit_memory %v MiB, got %v", rexLimitMemoryMiB, j.LimitMemory)
		}
	}
	if !priorities[100] || !priorities[75] {
		t.Errorf("expected priorities {100, 75}, got %v", priorities)
	}
}

// Invariant 1 from spec.md §8: every job the creator emits has a
// priority in the documented set, and no filtered crash kind ever
// surfaces as a job.
func TestRexCreator_FiltersAndPriorityInvariant(t *testing.T) {
	allKinds := []string{
		CrashIPOverwrite, CrashPartialIPOverwrite, CrashArbitraryRead,
		CrashWriteWhatWhere, CrashWriteXWhere, CrashBPOverwrite,
		CrashPartialBPOverwrite, CrashUncontrolledWrite,
		CrashUncontrolledIPOverwrite, CrashNullDereference, CrashUnknown,
	}
	fs := newFakeStore()
	var crashes []store.Crash
	for i, kind := range allKinds {
		crashes = append(crashes, store.Crash{ID: int64(i), Kind: kind})
	}
	fs.cbns = []store.ChallengeBinaryNode{{ID: 1, Crashes: crashes}}

	rc := NewRexCreator(fs, log.NewDevelopment())
	out, err := rc.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}

	allowedPriorities := map[float64]bool{5: true, 10: true, 25: true, 50: true, 75: true, 80: true, 100: true}
	for _, j := range out {
		if !allowedPriorities[j.Priority] {
			t.Errorf("job priority %v not in allowed set", j.Priority)
		}
	}
	if len(out) != 7 {
		t.Errorf("expected 7 non-filtered jobs, got %d", len(out))
	}
}

func TestRexCreator_IdempotentAcrossCalls(t *testing.T) {
	fs := newFakeStore()
	fs.cbns = []store.ChallengeBinaryNode{
		{ID: 1, Crashes: []store.Crash{{ID: 10, Kind: CrashIPOverwrite}}},
	}
	rc := NewRexCreator(fs, log.NewDevelopment())

	first, err := rc.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	second, err := rc.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("expected exactly one job per call, got %d and %d", len(first), len(second))
	}
	if first[0].ID != second[0].ID {
		t.Errorf("expected the same job id across calls, got %d and %d", first[0].ID, second[0].ID)
	}
}

func TestPollSanitizerCreator_InsertsButYieldsNothing(t *testing.T) {
	fs := newFakeStore()
	fs.unsanitized = []int64{1, 2, 3}

	pc := NewPollSanitizerCreator(fs, log.NewDevelopment())
	out, err := pc.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no yielded jobs, got %d", len(out))
	}
	if len(fs.byHash) != 3 {
		t.Fatalf("expected 3 inserted jobs, got %d", len(fs.byHash))
	}
}
