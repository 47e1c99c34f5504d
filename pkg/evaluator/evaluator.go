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

// Package evaluator is the peer consumer of the Cluster Client mentioned
// in spec.md §2/§6 that the distillation dropped: each competition round
// it pulls feedback, scores, and consensus evaluation from the
// competition infrastructure and persists them. Grounded entirely on
// original_source/meister/evaluators/__init__.py's Evaluator class. The
// competition protocol itself stays out of scope (spec.md §1): this
// package depends on CompetitionClient, a minimal interface, rather than
// any parsed wire format.
package evaluator

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"go.uber.org/multierr"

	"github.com/chubbymaggie/meister/pkg/store"
)

// CBEntry is one binary observed in a team's consensus cb evaluation.
type CBEntry struct {
	CBID string
	CSID string
	Hash string
	URI  string
}

// IDEntry is one entry in a team's consensus ids evaluation. Its shape is
// opaque to this package, exactly as original_source's _store_ids is a
// documented no-op (`# FIXME` / `pass`) upstream.
type IDEntry map[string]any

// CompetitionClient is the subset of the competition infrastructure's API
// the Evaluator needs. The protocol underneath is out of scope (spec.md
// §1); this interface is the only contact point.
type CompetitionClient interface {
	GetFeedback(ctx context.Context, kind string, round int64) (map[string]any, error)
	GetStatus(ctx context.Context) (map[string]float64, error)
	GetTeams(ctx context.Context) ([]string, error)
	GetEvaluationCBs(ctx context.Context, round int64, team string) ([]CBEntry, error)
	GetEvaluationIDs(ctx context.Context, round int64, team string) ([]IDEntry, error)
	FetchBinary(ctx context.Context, cb CBEntry) ([]byte, error)
}

// Store is the slice of *store.Store the Evaluator needs.
type Store interface {
	SaveFeedback(ctx context.Context, round int64, polls, povs, cbs map[string]any) error
	SaveScore(ctx context.Context, round int64, scores map[string]float64) error
	GetOrCreateTeam(ctx context.Context, name string) (store.Team, error)
	UpsertChallengeBinaryNode(ctx context.Context, sha256, name string, blob []byte) (store.ChallengeBinaryNode, error)
	SaveEvaluation(ctx context.Context, round int64, teamID int64, cbCount, idCount int) error
}

var _ Store = (*store.Store)(nil)

// Evaluator runs on its own cadence, independent of the Scheduler Loop
// (spec.md §2, SPEC_FULL.md §4.6).
type Evaluator struct {
	client CompetitionClient
	store  Store
	log    logr.Logger
}

func New(client CompetitionClient, s Store, log logr.Logger) *Evaluator {
	return &Evaluator{client: client, store: s, log: log}
}

// Run executes one round's feedback/score/consensus pull. Every external
// call is independently fault-isolated (SPEC_FULL.md §4.6): a failure in
// one does not block the others, matching spec.md §7's liveness property.
func (e *Evaluator) Run(ctx context.Context, round int64) error {
	var errs error
	if err := e.getFeedbacks(ctx, round); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("feedback: %w", err))
	}
	if err := e.getScores(ctx, round); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("scores: %w", err))
	}
	if err := e.getConsensusEvaluation(ctx, round); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("consensus evaluation: %w", err))
	}
	return errs
}

func (e *Evaluator) getFeedbacks(ctx context.Context, round int64) error {
	polls, err := e.client.GetFeedback(ctx, "poll", round)
	if err != nil {
		e.log.Error(err, "feedback poll error", "round", round)
		polls = nil
	}
	povs, err := e.client.GetFeedback(ctx, "pov", round)
	if err != nil {
		e.log.Error(err, "feedback pov error", "round", round)
		povs = nil
	}
	cbs, err := e.client.GetFeedback(ctx, "cb", round)
	if err != nil {
		e.log.Error(err, "feedback cb error", "round", round)
		cbs = nil
	}
	return e.store.SaveFeedback(ctx, round, polls, povs, cbs)
}

func (e *Evaluator) getScores(ctx context.Context, round int64) error {
	scores, err := e.client.GetStatus(ctx)
	if err != nil {
		e.log.Error(err, "scores error", "round", round)
		scores = nil
	}
	return e.store.SaveScore(ctx, round, scores)
}

func (e *Evaluator) getConsensusEvaluation(ctx context.Context, round int64) error {
	teams, err := e.client.GetTeams(ctx)
	if err != nil {
		e.log.Error(err, "unable to get teams", "round", round)
		return nil
	}

	var errs error
	for _, teamName := range teams {
		team, err := e.store.GetOrCreateTeam(ctx, teamName)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		cbs, err := e.client.GetEvaluationCBs(ctx, round, teamName)
		if err != nil {
			e.log.Error(err, "consensus evaluation cb error", "team", teamName, "round", round)
			cbs = nil
		}
		for _, cb := range cbs {
			if _, err := e.storeCB(ctx, cb); err != nil {
				e.log.Error(err, "failed to store challenge binary node", "team", teamName, "hash", cb.Hash)
			}
		}

		ids, err := e.client.GetEvaluationIDs(ctx, round, teamName)
		if err != nil {
			e.log.Error(err, "consensus evaluation ids error", "team", teamName, "round", round)
			ids = nil
		}

		if err := e.store.SaveEvaluation(ctx, round, team.ID, len(cbs), len(ids)); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// storeCB is the Go-native equivalent of original_source's _store_cb,
// simplified to the store boundary this repo owns: binary transfer is
// delegated to the competition client, not reimplemented here.
func (e *Evaluator) storeCB(ctx context.Context, cb CBEntry) (store.ChallengeBinaryNode, error) {
	blob, err := e.client.FetchBinary(ctx, cb)
	if err != nil {
		return store.ChallengeBinaryNode{}, fmt.Errorf("fetching binary %s: %w", cb.Hash, err)
	}
	return e.store.UpsertChallengeBinaryNode(ctx, cb.Hash, cb.CBID, blob)
}
