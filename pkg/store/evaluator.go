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

package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Team is a competing team, keyed by its competition-assigned name
// (SPEC_FULL.md §3, grounded on original_source's Team.get_or_create).
type Team struct {
	ID   int64
	Name string
}

// SaveFeedback persists one round's poll/pov/cb feedback (SPEC_FULL.md
// §4.6 step 1). Any of the three maps may be nil when the corresponding
// fetch failed; the Evaluator still records what it could get.
func (s *Store) SaveFeedback(ctx context.Context, round int64, polls, povs, cbs map[string]any) error {
	pollsJSON, err := json.Marshal(polls)
	if err != nil {
		return fmt.Errorf("marshaling poll feedback: %w", err)
	}
	povsJSON, err := json.Marshal(povs)
	if err != nil {
		return fmt.Errorf("marshaling pov feedback: %w", err)
	}
	cbsJSON, err := json.Marshal(cbs)
	if err != nil {
		return fmt.Errorf("marshaling cb feedback: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO feedback (round, polls, povs, cbs)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (round) DO UPDATE SET polls = $2, povs = $3, cbs = $4`,
		round, pollsJSON, povsJSON, cbsJSON)
	if err != nil {
		return fmt.Errorf("saving feedback: %w", err)
	}
	return nil
}

// SaveScore persists one round's team scores (SPEC_FULL.md §4.6 step 2).
func (s *Store) SaveScore(ctx context.Context, round int64, scores map[string]float64) error {
	scoresJSON, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("marshaling scores: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO scores (round, scores)
		VALUES ($1, $2)
		ON CONFLICT (round) DO UPDATE SET scores = $2`, round, scoresJSON)
	if err != nil {
		return fmt.Errorf("saving scores: %w", err)
	}
	return nil
}

// GetOrCreateTeam returns the team row for name, inserting it on first
// sight (SPEC_FULL.md §4.6 step 3).
func (s *Store) GetOrCreateTeam(ctx context.Context, name string) (Team, error) {
	row := s.pool.QueryRow(ctx, `SELECT id FROM teams WHERE name = $1`, name)
	var id int64
	err := row.Scan(&id)
	if err == nil {
		return Team{ID: id, Name: name}, nil
	}
	if err != pgx.ErrNoRows {
		return Team{}, fmt.Errorf("looking up team: %w", err)
	}

	row = s.pool.QueryRow(ctx, `INSERT INTO teams (name) VALUES ($1) RETURNING id`, name)
	if err := row.Scan(&id); err != nil {
		return Team{}, fmt.Errorf("creating team: %w", err)
	}
	return Team{ID: id, Name: name}, nil
}

// UpsertChallengeBinaryNode records a binary observed in a team's
// consensus evaluation, keyed by its sha256 (SPEC_FULL.md §4.6 step 3,
// simplified from original_source's _store_cb: blob transfer is the
// competition client's concern, not this store's).
func (s *Store) UpsertChallengeBinaryNode(ctx context.Context, sha256, name string, blob []byte) (ChallengeBinaryNode, error) {
	row := s.pool.QueryRow(ctx, `SELECT id FROM challenge_binary_nodes WHERE sha256 = $1`, sha256)
	var id int64
	err := row.Scan(&id)
	if err == nil {
		return ChallengeBinaryNode{ID: id, Sha256: sha256, Name: name}, nil
	}
	if err != pgx.ErrNoRows {
		return ChallengeBinaryNode{}, fmt.Errorf("looking up challenge binary node: %w", err)
	}

	row = s.pool.QueryRow(ctx, `
		INSERT INTO challenge_binary_nodes (sha256, name, blob)
		VALUES ($1, $2, $3)
		RETURNING id`, sha256, name, blob)
	if err := row.Scan(&id); err != nil {
		return ChallengeBinaryNode{}, fmt.Errorf("creating challenge binary node: %w", err)
	}
	return ChallengeBinaryNode{ID: id, Sha256: sha256, Name: name}, nil
}

// SaveEvaluation records a team's consensus-evaluation counts for a round
// (SPEC_FULL.md §4.6 step 3). The original stores the full cb/ids
// payloads against the evaluation row; this keeps only counts, since the
// full entries are already durable via UpsertChallengeBinaryNode and the
// ids path is a documented no-op upstream (original_source's _store_ids).
func (s *Store) SaveEvaluation(ctx context.Context, round int64, teamID int64, cbCount, idCount int) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO evaluations (round, team_id, cb_count, id_count)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (round, team_id) DO UPDATE SET cb_count = $3, id_count = $4`,
		round, teamID, cbCount, idCount)
	if err != nil {
		return fmt.Errorf("saving evaluation: %w", err)
	}
	return nil
}
