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

// Package jobs defines the core data model of spec.md §3: Job, Job Kind,
// and the transient Candidate produced by the brain. It is intentionally
// free of any Postgres or Kubernetes dependency so pkg/creators,
// pkg/brain, and pkg/scheduler can all depend on it without a cycle.
package jobs

import "fmt"

// Kind discriminates which creator emits a Job and which worker image
// runs it (spec.md §3).
type Kind string

const (
	KindRex           Kind = "rex"
	KindPollSanitizer Kind = "poll_sanitizer"
)

// Default resource hints applied when a Job leaves a request or limit
// unset (spec.md §3, §4.5). Units match the original farnsworth.models.Job
// column defaults: cpu in cores, memory in MiB.
const (
	DefaultRequestCPU    = 0.25
	DefaultRequestMemory = 256
	DefaultLimitCPU      = 0.5
	DefaultLimitMemory   = 512
)

// Job is the abstract unit of pending work (spec.md §3). Pointer fields
// are nil when the corresponding hint is unset in the store, matching the
// original's nullable columns.
type Job struct {
	ID      int64
	Kind    Kind
	Worker  string
	Payload map[string]any

	RequestCPU    *float64
	RequestMemory *int64
	LimitCPU      *float64
	LimitMemory   *int64

	KVMAccess  bool
	DataAccess bool
	Restart    bool

	// Priority is mutated only by the brain (spec.md §3 invariants).
	Priority float64
}

// WorkerName returns the deterministic worker pod name for this job
// (spec.md §3: "worker-<job_id>").
func (j Job) WorkerName() string {
	return fmt.Sprintf("worker-%d", j.ID)
}

// Candidate is a transient (Job, priority) pair produced by the brain,
// living for exactly one scheduling tick (spec.md §3).
type Candidate struct {
	Job      Job
	Priority float64
}
