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

// Package store is meister's Postgres access layer. It implements
// exactly the entities spec.md §6 names the core requires (Job,
// ChallengeBinaryNode+crashes, RawRoundPoll, per-kind job tables) plus the
// Evaluator's feedback/score/evaluation tables (SPEC_FULL.md §3). The
// shape of a Job's payload is opaque to the core (spec.md §1); the store
// only ever round-trips it as JSON.
//
// Grounded on the only Postgres example in the retrieval pack
// (other_examples' wisbric-nightowl internal/seed/demo.go), which uses
// jackc/pgx/v5's pgxpool the same way this file does.
package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chubbymaggie/meister/pkg/jobs"
)

// Store wraps a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pooled connection using the same three credentials
// spec.md §6 forwards to workers (POSTGRES_DATABASE_USER/_PASSWORD/_NAME).
func Connect(ctx context.Context, user, password, database string) (*Store, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@localhost:5432/%s", user, password, database)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool wraps an already-constructed pool, for callers that need
// custom pool options.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Close() {
	s.pool.Close()
}

// Tx runs fn inside a database transaction, used by cluster-absent mode
// to persist brain priorities atomically (spec.md §4.5).
func (s *Store) Tx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Crash is a single crash row attached to a ChallengeBinaryNode
// (spec.md §6).
type Crash struct {
	ID   int64
	Kind string
}

// ChallengeBinaryNode carries the crashes the vulnerability-exploit
// creator reads (spec.md §4.3, §6). Sha256/Name are populated only by the
// Evaluator's consensus-evaluation ingestion (SPEC_FULL.md §4.6); the Rex
// creator never reads them.
type ChallengeBinaryNode struct {
	ID      int64
	Sha256  string
	Name    string
	Crashes []Crash
}

// ListChallengeBinaryNodes returns every known binary with its attached
// crashes (spec.md §4.3: "For every known binary and every crash attached
// to it").
func (s *Store) ListChallengeBinaryNodes(ctx context.Context) ([]ChallengeBinaryNode, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT cbn.id, c.id, c.kind
		FROM challenge_binary_nodes cbn
		JOIN crashes c ON c.cbn_id = cbn.id
		ORDER BY cbn.id`)
	if err != nil {
		return nil, fmt.Errorf("listing challenge binary nodes: %w", err)
	}
	defer rows.Close()

	byID := map[int64]*ChallengeBinaryNode{}
	var order []int64
	for rows.Next() {
		var cbnID, crashID int64
		var kind string
		if err := rows.Scan(&cbnID, &crashID, &kind); err != nil {
			return nil, fmt.Errorf("scanning challenge binary node row: %w", err)
		}
		cbn, ok := byID[cbnID]
		if !ok {
			cbn = &ChallengeBinaryNode{ID: cbnID}
			byID[cbnID] = cbn
			order = append(order, cbnID)
		}
		cbn.Crashes = append(cbn.Crashes, Crash{ID: crashID, Kind: kind})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ChallengeBinaryNode, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// UnsanitizedRawRoundPollIDs returns the ids of every RawRoundPoll with
// sanitized = false (spec.md §4.3's poll-sanitizer creator).
func (s *Store) UnsanitizedRawRoundPollIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM raw_round_polls WHERE sanitized = false`)
	if err != nil {
		return nil, fmt.Errorf("listing unsanitized raw round polls: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetJobByPayloadHash looks up an existing job of the given kind by its
// payload hash, the Go-native equivalent of the original's
// get_or_create(payload=...) idempotency key (spec.md §4.3, SPEC_FULL.md §3).
func (s *Store) GetJobByPayloadHash(ctx context.Context, kind jobs.Kind, payloadHash uint64) (jobs.Job, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, worker, payload, request_cpu, request_memory, limit_cpu, limit_memory,
		       kvm_access, data_access, restart, priority
		FROM jobs
		WHERE kind = $1 AND payload_hash = $2`, string(kind), int64(payloadHash))
	job, err := scanJob(row, kind)
	if err == pgx.ErrNoRows {
		return jobs.Job{}, false, nil
	}
	if err != nil {
		return jobs.Job{}, false, fmt.Errorf("looking up job by payload hash: %w", err)
	}
	return job, true, nil
}

// InsertJob inserts a new job row and returns it with its assigned id
// (spec.md §3: "a stable identifier (assigned by the state store on
// insert)").
func (s *Store) InsertJob(ctx context.Context, j jobs.Job, payloadHash uint64) (jobs.Job, error) {
	payload, err := json.Marshal(j.Payload)
	if err != nil {
		return jobs.Job{}, fmt.Errorf("marshaling job payload: %w", err)
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO jobs (kind, worker, payload, payload_hash, request_cpu, request_memory,
		                   limit_cpu, limit_memory, kvm_access, data_access, restart, priority)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		string(j.Kind), j.Worker, payload, int64(payloadHash), j.RequestCPU, j.RequestMemory,
		j.LimitCPU, j.LimitMemory, j.KVMAccess, j.DataAccess, j.Restart, j.Priority)
	if err := row.Scan(&j.ID); err != nil {
		return jobs.Job{}, fmt.Errorf("inserting job: %w", err)
	}
	return j, nil
}

// SetPriority persists a job's mutated priority (spec.md §3, §4.5
// cluster-absent mode). tx is nil to run outside a transaction.
func (s *Store) SetPriority(ctx context.Context, tx pgx.Tx, jobID int64, priority float64) error {
	const q = `UPDATE jobs SET priority = $1 WHERE id = $2`
	var err error
	if tx != nil {
		_, err = tx.Exec(ctx, q, priority, jobID)
	} else {
		_, err = s.pool.Exec(ctx, q, priority, jobID)
	}
	if err != nil {
		return fmt.Errorf("persisting job priority: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner, kind jobs.Kind) (jobs.Job, error) {
	var (
		j       jobs.Job
		payload []byte
	)
	j.Kind = kind
	if err := row.Scan(&j.ID, &j.Worker, &payload, &j.RequestCPU, &j.RequestMemory,
		&j.LimitCPU, &j.LimitMemory, &j.KVMAccess, &j.DataAccess, &j.Restart, &j.Priority); err != nil {
		return jobs.Job{}, err
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &j.Payload); err != nil {
			return jobs.Job{}, fmt.Errorf("unmarshaling job payload: %w", err)
		}
	}
	return j, nil
}

