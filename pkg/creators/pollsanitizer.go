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

const pollSanitizerWorkerImage = "poll-sanitizer"

type pollSanitizerPayload struct {
	RawRoundPollID int64 `hash:"RawRoundPollID"`
}

// PollSanitizerCreator inserts an idempotent PollSanitizerJob for every
// unsanitized RawRoundPoll, then always yields an empty stream
// (spec.md §4.3, Open Question 2 — preserved exactly from
// original_source/meister/creators/network_poll_sanitizer.py, which
// inserts the job then `return iter(())`). The sanitizer work is
// deferred to the worker discovering the row directly.
type PollSanitizerCreator struct {
	store pollSanitizerStore
	log   logr.Logger
}

func NewPollSanitizerCreator(s pollSanitizerStore, log logr.Logger) *PollSanitizerCreator {
	return &PollSanitizerCreator{store: s, log: log}
}

func (c *PollSanitizerCreator) Name() string { return "poll_sanitizer" }

func (c *PollSanitizerCreator) Jobs(ctx context.Context) ([]jobs.Job, error) {
	ids, err := c.store.UnsanitizedRawRoundPollIDs(ctx)
	if err != nil {
		return nil, err
	}

	for _, id := range ids {
		payload := pollSanitizerPayload{RawRoundPollID: id}
		hash, err := hashstructure.Hash(payload, hashstructure.FormatV2, nil)
		if err != nil {
			return nil, err
		}

		_, exists, err := c.store.GetJobByPayloadHash(ctx, jobs.KindPollSanitizer, hash)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}

		job := jobs.Job{
			Kind:    jobs.KindPollSanitizer,
			Worker:  pollSanitizerWorkerImage,
			Payload: map[string]any{"rrp_id": id},
		}
		if _, err := c.store.InsertJob(ctx, job, hash); err != nil {
			return nil, err
		}
		c.log.V(1).Info("created poll sanitizer job", "raw_round_poll_id", id)
	}

	// Intentionally empty: see the doc comment above.
	return nil, nil
}
