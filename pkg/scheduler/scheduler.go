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

// Package scheduler implements spec.md §4.5, the top-level control loop:
// fan out creators, drain them through the brain, admit against the
// Resource Accountant, and dispatch delete-then-create pods. Grounded on
// the teacher's pkg/controllers/provisioning/provisioner.go (Reconcile /
// LaunchMachines) and original_source/meister/schedulers/__init__.py's
// BaseScheduler.run/_run.
package scheduler

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"k8s.io/client-go/util/workqueue"

	"github.com/chubbymaggie/meister/pkg/brain"
	"github.com/chubbymaggie/meister/pkg/cluster"
	"github.com/chubbymaggie/meister/pkg/creators"
	"github.com/chubbymaggie/meister/pkg/jobs"
	"github.com/chubbymaggie/meister/pkg/log"
	"github.com/chubbymaggie/meister/pkg/metrics"
	"github.com/chubbymaggie/meister/pkg/resources"
	"github.com/chubbymaggie/meister/pkg/store"
)

// Store is the slice of *store.Store the Scheduler Loop needs. Kept as an
// interface, like pkg/creators' jobStore, so tests substitute an in-memory
// fake instead of standing up Postgres.
type Store interface {
	Tx(ctx context.Context, fn func(pgx.Tx) error) error
	SetPriority(ctx context.Context, tx pgx.Tx, jobID int64, priority float64) error
}

var _ Store = (*store.Store)(nil)

// Scheduler is the spec.md §4.5 top-level control loop.
type Scheduler struct {
	store          Store
	cluster        cluster.Client
	accountant     *resources.Accountant
	brain          brain.Brain
	creators       []creators.Creator
	clusterPresent bool
	numThreads     int
	sleepytime     time.Duration
	podEnv         PodEnv
	log            logr.Logger
}

// Options bundles the constructor's knobs.
type Options struct {
	Store          Store
	Cluster        cluster.Client // nil in cluster-absent mode
	Accountant     *resources.Accountant
	Brain          brain.Brain
	Creators       []creators.Creator
	ClusterPresent bool
	NumThreads     int
	Sleepytime     time.Duration
	PodEnv         PodEnv
	Log            logr.Logger
}

func New(opts Options) *Scheduler {
	b := opts.Brain
	if b == nil {
		b = brain.NewToadBrain()
	}
	return &Scheduler{
		store:          opts.Store,
		cluster:        opts.Cluster,
		accountant:     opts.Accountant,
		brain:          b,
		creators:       opts.Creators,
		clusterPresent: opts.ClusterPresent,
		numThreads:     opts.NumThreads,
		sleepytime:     opts.Sleepytime,
		podEnv:         opts.PodEnv,
		log:            opts.Log,
	}
}

// Run selects a mode once at startup (spec.md §4.5) and blocks until ctx is
// canceled. Cluster-absent mode runs exactly once and returns; a scheduler
// tick has no cancellation (spec.md §5), so a canceled context only takes
// effect between ticks.
func (s *Scheduler) Run(ctx context.Context) error {
	if !s.clusterPresent {
		return s.RunClusterAbsent(ctx)
	}
	for {
		if err := s.Tick(ctx); err != nil {
			s.log.Error(err, "scheduler tick failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.sleepytime):
		}
	}
}

// RunClusterAbsent implements the dry-run/offline-replay mode (spec.md
// §4.5): fan out the creators exactly as Tick does, drain the resulting
// stream through the brain, and persist each candidate's priority inside
// one transaction. No cluster API calls are made (scenario e). The brain's
// one input source is the creators (spec.md §2), not the jobs table, so
// this must invoke them rather than read every row back out of storage.
// That also fires the poll-sanitizer's mandatory insertion side effect
// (spec.md §4.3) during offline replay.
func (s *Scheduler) RunClusterAbsent(ctx context.Context) error {
	tickLog := log.WithTick(s.log, uuid.NewString())

	all, err := s.collectJobs(ctx, tickLog)
	if err != nil {
		tickLog.Error(err, "one or more creators failed during cluster-absent run")
	}

	candidates := s.brain.Sort(all)
	return s.store.Tx(ctx, func(tx pgx.Tx) error {
		for _, c := range candidates {
			if err := s.store.SetPriority(ctx, tx, c.Job.ID, c.Priority); err != nil {
				return err
			}
		}
		return nil
	})
}

// Tick runs one cluster-present iteration (spec.md §4.5 steps 1-3).
func (s *Scheduler) Tick(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	tickID := uuid.NewString()
	tickLog := log.WithTick(s.log, tickID)

	candidateJobs, err := s.collectJobs(ctx, tickLog)
	if err != nil {
		tickLog.Error(err, "one or more creators failed this tick")
	}

	available, availErr := s.accountant.Available(ctx)
	if availErr != nil {
		return availErr
	}

	candidates := s.brain.Sort(candidateJobs)
	var dispatchErrs error
	for _, c := range candidates {
		if !available.Fits(requestVector(c.Job)) {
			metrics.JobsSkipped.Inc()
			tickLog.V(1).Info("skipping candidate, insufficient budget", "job_id", c.Job.ID)
			continue
		}
		metrics.JobsAdmitted.Inc()
		if err := s.dispatch(ctx, c.Job); err != nil {
			dispatchErrs = multierr.Append(dispatchErrs, err)
			tickLog.Error(err, "dispatch failed", "job_id", c.Job.ID)
		}
	}
	return dispatchErrs
}

// collectJobs fans out every creator on a bounded worker pool and
// concatenates their streams (spec.md §4.5 step 1, §5). A failing
// creator's stream truncates but does not poison the tick (scenario f).
func (s *Scheduler) collectJobs(ctx context.Context, tickLog logr.Logger) ([]jobs.Job, error) {
	results := make([][]jobs.Job, len(s.creators))
	errs := make([]error, len(s.creators))

	workqueue.ParallelizeUntil(ctx, s.numThreads, len(s.creators), func(i int) {
		out, err := s.creators[i].Jobs(ctx)
		if err != nil {
			errs[i] = err
			metrics.CreatorErrors.WithLabelValues(s.creators[i].Name()).Inc()
			tickLog.Error(err, "creator failed", "creator", s.creators[i].Name())
			return
		}
		results[i] = out
		metrics.JobsCreated.WithLabelValues(s.creators[i].Name()).Add(float64(len(out)))
	})

	return lo.Flatten(results), multierr.Combine(errs...)
}

// requestVector is the budget a candidate would consume if dispatched,
// used for the required admission check (spec.md §4.5 Open Question 1,
// resolved: enforced).
func requestVector(j jobs.Job) resources.Vector {
	cpu := jobs.DefaultRequestCPU
	if j.RequestCPU != nil {
		cpu = *j.RequestCPU
	}
	mem := int64(jobs.DefaultRequestMemory) * 1024 * 1024
	if j.RequestMemory != nil {
		mem = *j.RequestMemory * 1024 * 1024
	}
	return resources.Vector{CPU: cpu, Memory: mem, Pods: 1}
}

// dispatch implements the delete-then-create discipline that makes
// rescheduling idempotent (spec.md §3, §4.5 step 3, invariant 4).
func (s *Scheduler) dispatch(ctx context.Context, j jobs.Job) error {
	name := j.WorkerName()
	if err := s.cluster.DeletePod(ctx, name); err != nil {
		return err
	}
	metrics.PodsDeleted.Inc()

	spec := buildPodSpec(j, s.podEnv)
	if err := s.cluster.CreatePod(ctx, spec); err != nil {
		if err == cluster.ErrAlreadyExists {
			metrics.PodsConflicted.Inc()
			return nil
		}
		return err
	}
	metrics.PodsCreated.Inc()
	return nil
}
