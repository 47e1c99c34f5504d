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

// Package creators implements spec.md §4.3: a polymorphic producer of
// pending jobs, with one concrete Creator per Job Kind. Grounded on
// original_source/meister/creators/rex.py and
// creators/network_poll_sanitizer.py.
package creators

import (
	"context"

	"github.com/chubbymaggie/meister/pkg/jobs"
	"github.com/chubbymaggie/meister/pkg/store"
)

// Creator is the capability every job source implements (spec.md §4.3,
// §9: "Creator { jobs() -> stream<Job> }"). Jobs must terminate and be
// safe to call repeatedly and concurrently with other creators.
type Creator interface {
	// Name identifies the creator in logs and metrics.
	Name() string
	Jobs(ctx context.Context) ([]jobs.Job, error)
}

// jobStore is the slice of *store.Store every creator in this package
// needs. Defining it as an interface (rather than depending on the
// concrete store directly) lets tests substitute an in-memory fake
// instead of standing up Postgres.
type jobStore interface {
	GetJobByPayloadHash(ctx context.Context, kind jobs.Kind, payloadHash uint64) (jobs.Job, bool, error)
	InsertJob(ctx context.Context, j jobs.Job, payloadHash uint64) (jobs.Job, error)
}

type rexStore interface {
	jobStore
	ListChallengeBinaryNodes(ctx context.Context) ([]store.ChallengeBinaryNode, error)
}

type pollSanitizerStore interface {
	jobStore
	UnsanitizedRawRoundPollIDs(ctx context.Context) ([]int64, error)
}

var (
	_ rexStore           = (*store.Store)(nil)
	_ pollSanitizerStore = (*store.Store)(nil)
)
