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

	"github.com/go-logr/logr"
	"github.com/mitchellh/hashstructure/v2"

	"github.com/chubbymaggie/meister/pkg/jobs"
)

// Crash kinds (spec.md §4.3), grounded on
// original_source/meister/creators/rex.py's Vulnerability constants.
const (
	CrashIPOverwrite             = "ip_overwrite"
	CrashPartialIPOverwrite      = "partial_ip_overwrite"
	CrashUncontrolledIPOverwrite = "uncontrolled_ip_overwrite"
	CrashBPOverwrite             = "bp_overwrite"
	CrashPartialBPOverwrite      = "partial_bp_overwrite"
	CrashWriteWhatWhere          = "write_what_where"
	CrashWriteXWhere             = "write_x_where"
	CrashUncontrolledWrite       = "uncontrolled_write"
	CrashArbitraryRead           = "arbitrary_read"
	CrashNullDereference         = "null_dereference"
	CrashUnknown                 = "unknown"
)

// filteredCrashKinds are never turned into jobs (spec.md §4.3).
var filteredCrashKinds = map[string]bool{
	CrashNullDereference:         true,
	CrashUncontrolledIPOverwrite: true,
	CrashUncontrolledWrite:       true,
	CrashUnknown:                 true,
}

// priorityByCrashKind is the table in spec.md §4.3. The zero-priority
// rows only exist as a safety net: they're reached solely if a filtered
// kind somehow slips past filteredCrashKinds.
var priorityByCrashKind = map[string]float64{
	CrashIPOverwrite:             100,
	CrashPartialIPOverwrite:      80,
	CrashArbitraryRead:           75,
	CrashWriteWhatWhere:          50,
	CrashWriteXWhere:             25,
	CrashBPOverwrite:             10,
	CrashPartialBPOverwrite:      5,
	CrashUncontrolledWrite:       0,
	CrashUncontrolledIPOverwrite: 0,
	CrashNullDereference:         0,
}

// rexLimitCPU and rexLimitMemoryMiB are the fixed resource hints every
// Rex job carries (spec.md §4.3), matching
// original_source/meister/creators/rex.py's
// `limit_cpu=1, limit_memory=10` (GiB) exactly. A rare class of crash
// needs substantially more memory to exploit; the original leaves this as
// a TODO rather than a real knob, so we do too.
const (
	rexLimitCPU       = 1.0
	rexLimitMemoryMiB = 10 * 1024
	rexWorkerImage    = "rex"
)

// rexPayload is hashed to build the idempotent dedup key (SPEC_FULL.md §3).
type rexPayload struct {
	CrashID int64 `hash:"CrashID"`
}

// RexCreator emits one job per exploitable crash attached to every known
// binary (spec.md §4.3).
type RexCreator struct {
	store rexStore
	log   logr.Logger
}

func NewRexCreator(s rexStore, log logr.Logger) *RexCreator {
	return &RexCreator{store: s, log: log}
}

func (c *RexCreator) Name() string { return "rex" }

func (c *RexCreator) Jobs(ctx context.Context) ([]jobs.Job, error) {
	cbns, err := c.store.ListChallengeBinaryNodes(ctx)
	if err != nil {
		return nil, err
	}

	limitCPU := rexLimitCPU
	limitMemory := int64(rexLimitMemoryMiB)

	var out []jobs.Job
	for _, cbn := range cbns {
		for _, crash := range cbn.Crashes {
			if filteredCrashKinds[crash.Kind] {
				continue
			}
			priority, ok := priorityByCrashKind[crash.Kind]
			if !ok {
				// Programming error: unrecognized crash kind (spec.md §4.3, §7).
				c.log.Error(nil, "no priority for crash kind, this is a bug", "kind", crash.Kind, "crash_id", crash.ID)
				continue
			}

			payload := rexPayload{CrashID: crash.ID}
			hash, err := hashstructure.Hash(payload, hashstructure.FormatV2, nil)
			if err != nil {
				return nil, err
			}

			job, exists, err := c.store.GetJobByPayloadHash(ctx, jobs.KindRex, hash)
			if err != nil {
				return nil, err
			}
			if !exists {
				job = jobs.Job{
					Kind:        jobs.KindRex,
					Worker:      rexWorkerImage,
					Payload:     map[string]any{"crash_id": crash.ID},
					LimitCPU:    &limitCPU,
					LimitMemory: &limitMemory,
					Priority:    priority,
				}
				job, err = c.store.InsertJob(ctx, job, hash)
				if err != nil {
					return nil, err
				}
			}
			out = append(out, job)
		}
	}
	return out, nil
}
