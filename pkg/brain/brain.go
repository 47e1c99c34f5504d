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

// Package brain implements spec.md §4.4's Prioritization Brain: a
// strategy that totally orders a stream of candidate jobs. The scheduler
// treats a Brain as opaque and must not rely on tie-break stability
// beyond "deterministic within a tick" (spec.md §4.4).
package brain

import (
	"github.com/chubbymaggie/meister/pkg/jobs"
)

// Brain sorts an unordered job slice into non-increasing priority order
// (spec.md §9: "Brain { sort(stream<Job>) -> stream<(Job, priority)> }").
// Implementations must not mutate the input Job values.
type Brain interface {
	Sort(in []jobs.Job) []jobs.Candidate
}
