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

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5"

	"github.com/chubbymaggie/meister/pkg/brain"
	"github.com/chubbymaggie/meister/pkg/cluster"
	"github.com/chubbymaggie/meister/pkg/cluster/fake"
	"github.com/chubbymaggie/meister/pkg/creators"
	"github.com/chubbymaggie/meister/pkg/jobs"
	"github.com/chubbymaggie/meister/pkg/log"
	"github.com/chubbymaggie/meister/pkg/resources"
)

// fakeStore is an in-memory Store used by scheduler tests.
type fakeStore struct {
	mu         sync.Mutex
	priorities map[int64]float64
}

func newFakeStore() *fakeStore {
	return &fakeStore{priorities: map[int64]float64{}}
}

func (f *fakeStore) Tx(_ context.Context, fn func(pgx.Tx) error) error {
	return fn(nil)
}

func (f *fakeStore) SetPriority(_ context.Context, _ pgx.Tx, jobID int64, priority float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priorities[jobID] = priority
	return nil
}

// fakeCreator yields a fixed set of jobs, optionally failing on every call.
type fakeCreator struct {
	name    string
	out     []jobs.Job
	failErr error
	mu      sync.Mutex
	calls   int
}

func (c *fakeCreator) Name() string { return c.name }

func (c *fakeCreator) Jobs(_ context.Context) ([]jobs.Job, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.failErr != nil {
		return nil, c.failErr
	}
	return c.out, nil
}

var _ creators.Creator = (*fakeCreator)(nil)

func bigCluster() *fake.Cluster {
	cl := fake.New()
	cl.Nodes = []cluster.Node{
		{Name: "node-1", CapacityCPU: "8", CapacityMem: "16Gi", CapacityPods: "20"},
	}
	return cl
}

// Scenario (d) from spec.md §8: re-dispatching the same job id is
// idempotent — the post-state is exactly one pod named worker-<id>
// regardless of how many times schedule(job) is called.
func TestScheduler_IdempotentReschedule(t *testing.T) {
	cl := bigCluster()
	acc := resources.NewAccountant(cl, 1.0, 4, log.NewDevelopment())
	job := jobs.Job{ID: 5, Worker: "rex"}
	creator := &fakeCreator{name: "rex", out: []jobs.Job{job}}

	s := New(Options{
		Store:          newFakeStore(),
		Cluster:        cl,
		Accountant:     acc,
		Brain:          brain.NewToadBrain(),
		Creators:       []creators.Creator{creator},
		ClusterPresent: true,
		NumThreads:     2,
		PodEnv:         testEnv(),
		Log:            log.NewDevelopment(),
	})

	ctx := context.Background()
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("first tick: %v", err)
	}
	if err := s.Tick(ctx); err != nil {
		t.Fatalf("second tick: %v", err)
	}

	if got := len(cl.Pods); got != 1 {
		t.Fatalf("expected exactly one pod, got %d", got)
	}
	if _, ok := cl.Pods["worker-5"]; !ok {
		t.Fatalf("expected pod named worker-5, got %v", cl.Pods)
	}
	// Each tick deletes the prior pod (a no-op on tick one) then creates.
	if len(cl.CreateCalls) != 2 {
		t.Errorf("expected 2 create calls across 2 ticks, got %d", len(cl.CreateCalls))
	}
	if len(cl.DeleteCalls) != 2 {
		t.Errorf("expected 2 delete calls across 2 ticks, got %d", len(cl.DeleteCalls))
	}
}

// Scenario (e) from spec.md §8: with KUBERNETES_SERVICE_HOST unset, no
// cluster API calls are made and every job produced by creators has its
// priority persisted. The brain's only input is the creator fan-out
// (spec.md §2), so this drives creators rather than seeding the jobs
// table directly.
func TestScheduler_ClusterAbsentMode(t *testing.T) {
	st := newFakeStore()
	rex := &fakeCreator{name: "rex", out: []jobs.Job{{ID: 1}, {ID: 2}}}
	sanitizer := &fakeCreator{name: "poll-sanitizer", out: []jobs.Job{{ID: 3}}}

	s := New(Options{
		Store:          st,
		Brain:          brain.NewToadBrain(),
		Creators:       []creators.Creator{rex, sanitizer},
		ClusterPresent: false,
		NumThreads:     2,
		Log:            log.NewDevelopment(),
	})

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("RunClusterAbsent: %v", err)
	}

	if rex.calls != 1 {
		t.Errorf("expected rex creator to be invoked once, got %d", rex.calls)
	}
	if sanitizer.calls != 1 {
		t.Errorf("expected poll-sanitizer creator to be invoked once, got %d", sanitizer.calls)
	}
	if len(st.priorities) != 3 {
		t.Fatalf("expected all 3 creator-produced jobs to have a persisted priority, got %d", len(st.priorities))
	}
}

// Scenario (f) from spec.md §8: two creators, the first fails on every
// read. Expected: the tick completes with all jobs from the second
// creator dispatched; no jobs from the first are dispatched; the error is
// surfaced once.
func TestScheduler_CreatorFailureIsolation(t *testing.T) {
	cl := bigCluster()
	acc := resources.NewAccountant(cl, 1.0, 4, log.NewDevelopment())
	failing := &fakeCreator{name: "broken", failErr: errors.New("db exploded")}
	good := &fakeCreator{name: "rex", out: []jobs.Job{{ID: 9, Worker: "rex"}}}

	s := New(Options{
		Store:          newFakeStore(),
		Cluster:        cl,
		Accountant:     acc,
		Brain:          brain.NewToadBrain(),
		Creators:       []creators.Creator{failing, good},
		ClusterPresent: true,
		NumThreads:     2,
		PodEnv:         testEnv(),
		Log:            log.NewDevelopment(),
	})

	if err := s.Tick(context.Background()); err != nil {
		t.Fatalf("tick should not fail when one creator errors: %v", err)
	}
	if len(cl.Pods) != 1 {
		t.Fatalf("expected exactly 1 pod dispatched from the healthy creator, got %d", len(cl.Pods))
	}
	if _, ok := cl.Pods["worker-9"]; !ok {
		t.Fatalf("expected worker-9 to be dispatched, got %v", cl.Pods)
	}
}
