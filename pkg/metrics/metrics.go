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

// Package metrics exposes the Prometheus series the Scheduler Loop emits,
// grounded on the teacher's pkg/metrics/metrics.go.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const Namespace = "meister"

var (
	TickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "tick_duration_seconds",
		Help:      "Duration of one scheduler tick, from creator fan-out through dispatch.",
	})

	JobsCreated = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "jobs_created_total",
		Help:      "Jobs yielded by a creator in a tick, labeled by creator name.",
	}, []string{"creator"})

	JobsAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "jobs_admitted_total",
		Help:      "Candidates that passed the resource admission check and were dispatched.",
	})

	JobsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "jobs_skipped_total",
		Help:      "Candidates left for a later tick because they exceeded the available budget.",
	})

	PodsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "pods_created_total",
		Help:      "Worker pods successfully created.",
	})

	PodsDeleted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "pods_deleted_total",
		Help:      "Worker pods deleted, either opportunistically by the accountant or before a reschedule.",
	})

	PodsConflicted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "pods_conflicted_total",
		Help:      "Pod creates that raced an existing pod and were treated as success (spec's AlreadyExists).",
	})

	CreatorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: "scheduler",
		Name:      "creator_errors_total",
		Help:      "Creator failures, labeled by creator name.",
	}, []string{"creator"})
)

// MustRegister registers every series above against the default Prometheus
// registerer. Called once at process startup.
func MustRegister() {
	prometheus.MustRegister(
		TickDuration, JobsCreated, JobsAdmitted, JobsSkipped,
		PodsCreated, PodsDeleted, PodsConflicted, CreatorErrors,
	)
}
