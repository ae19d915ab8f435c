// Package memory implements a fully in-memory ballast.Driver. Transactions
// mutate a deep copy of the database and swap it in on commit, so a failed
// or rolled-back batch leaves nothing behind. Intended for unit testing and
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ballasthq/ballast"
	"github.com/ballasthq/ballast/maintain"
)

// Ensure Store implements the driver and maintenance boundaries at
// compile time.
var (
	_ ballast.Driver      = (*Store)(nil)
	_ maintain.Maintainer = (*Store)(nil)
)

type jobRow struct {
	stateID   int64
	stateName string
	expireAt  *time.Time
}

type stateRow struct {
	id        int64
	jobID     string
	name      string
	reason    string
	data      []byte
	createdAt time.Time
}

type counterRow struct {
	key      string
	value    int64
	expireAt *time.Time
}

type setRow struct {
	score    float64
	expireAt *time.Time
}

type listRow struct {
	id       int64
	value    string
	expireAt *time.Time
}

type hashRow struct {
	value    string
	expireAt *time.Time
}

// database is the complete collection state. It is always mutated via a
// clone owned by one transaction.
type database struct {
	jobs        map[string]jobRow
	states      []stateRow
	nextStateID int64
	counters    []counterRow
	sets        map[string]map[string]setRow
	lists       map[string][]listRow
	nextListID  int64
	hashes      map[string]map[string]hashRow
	queues      map[string][]string
}

func newDatabase() *database {
	return &database{
		jobs:        make(map[string]jobRow),
		nextStateID: 1,
		sets:        make(map[string]map[string]setRow),
		lists:       make(map[string][]listRow),
		nextListID:  1,
		hashes:      make(map[string]map[string]hashRow),
		queues:      make(map[string][]string),
	}
}

func (db *database) clone() *database {
	c := &database{
		jobs:        make(map[string]jobRow, len(db.jobs)),
		states:      append([]stateRow(nil), db.states...),
		nextStateID: db.nextStateID,
		counters:    append([]counterRow(nil), db.counters...),
		sets:        make(map[string]map[string]setRow, len(db.sets)),
		lists:       make(map[string][]listRow, len(db.lists)),
		nextListID:  db.nextListID,
		hashes:      make(map[string]map[string]hashRow, len(db.hashes)),
		queues:      make(map[string][]string, len(db.queues)),
	}
	for id, j := range db.jobs {
		c.jobs[id] = j
	}
	for key, members := range db.sets {
		m := make(map[string]setRow, len(members))
		for v, r := range members {
			m[v] = r
		}
		c.sets[key] = m
	}
	for key, rows := range db.lists {
		c.lists[key] = append([]listRow(nil), rows...)
	}
	for key, fields := range db.hashes {
		m := make(map[string]hashRow, len(fields))
		for f, r := range fields {
			m[f] = r
		}
		c.hashes[key] = m
	}
	for q, ids := range db.queues {
		c.queues[q] = append([]string(nil), ids...)
	}
	return c
}

// Store is an in-memory backing store. Safe for concurrent access.
type Store struct {
	mu sync.Mutex
	db *database
}

// New returns a new empty Store.
func New() *Store {
	return &Store{db: newDatabase()}
}

// Begin opens a transaction over a deep copy of the current state.
func (s *Store) Begin(_ context.Context) (ballast.Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &memTx{store: s, db: s.db.clone()}, nil
}

type memTx struct {
	store *Store
	db    *database
	done  bool
}

// Exec is unsupported: the memory backend has no statement protocol.
func (tx *memTx) Exec(_ context.Context, _ string, _ ...any) error {
	return ballast.ErrConnUnsupported
}

// Commit swaps the transaction's copy in as the store's state.
func (tx *memTx) Commit(_ context.Context) error {
	if tx.done {
		return ballast.ErrTransactionDone
	}
	tx.done = true
	tx.store.mu.Lock()
	tx.store.db = tx.db
	tx.store.mu.Unlock()
	return nil
}

// Rollback discards the transaction's copy.
func (tx *memTx) Rollback(_ context.Context) error {
	tx.done = true
	tx.db = nil
	return nil
}

// Apply interprets one command against the transaction's copy.
func (tx *memTx) Apply(_ context.Context, cmd ballast.Command) error {
	if tx.done {
		return ballast.ErrTransactionDone
	}
	db := tx.db

	switch c := cmd.(type) {
	case ballast.JobExpire:
		if j, ok := db.jobs[c.JobID]; ok {
			at := c.ExpireAt
			j.expireAt = &at
			db.jobs[c.JobID] = j
		}

	case ballast.JobPersist:
		if j, ok := db.jobs[c.JobID]; ok {
			j.expireAt = nil
			db.jobs[c.JobID] = j
		}

	case ballast.JobSetState:
		id := db.nextStateID
		db.nextStateID++
		db.states = append(db.states, stateRow{
			id:        id,
			jobID:     c.JobID,
			name:      c.Name,
			reason:    c.Reason,
			data:      c.Data,
			createdAt: c.CreatedAt,
		})
		if j, ok := db.jobs[c.JobID]; ok {
			j.stateID = id
			j.stateName = c.Name
			db.jobs[c.JobID] = j
		}

	case ballast.StateAdd:
		id := db.nextStateID
		db.nextStateID++
		db.states = append(db.states, stateRow{
			id:        id,
			jobID:     c.JobID,
			name:      c.Name,
			reason:    c.Reason,
			data:      c.Data,
			createdAt: c.CreatedAt,
		})

	case ballast.QueueAdd:
		db.queues[c.Queue] = append(db.queues[c.Queue], c.JobID)

	case ballast.CounterAdd:
		db.counters = append(db.counters, counterRow{key: c.Key, value: c.Delta, expireAt: c.ExpireAt})

	case ballast.SetAdd:
		tx.upsertSet(c.Key, c.Value, c.Score)

	case ballast.SetAddRange:
		for _, v := range c.Values {
			tx.upsertSet(c.Key, v, 0)
		}

	case ballast.SetRemove:
		if members, ok := db.sets[c.Key]; ok {
			delete(members, c.Value)
		}

	case ballast.SetExpire:
		for v, r := range db.sets[c.Key] {
			at := c.ExpireAt
			r.expireAt = &at
			db.sets[c.Key][v] = r
		}

	case ballast.SetPersist:
		for v, r := range db.sets[c.Key] {
			r.expireAt = nil
			db.sets[c.Key][v] = r
		}

	case ballast.SetDelete:
		delete(db.sets, c.Key)

	case ballast.ListInsert:
		id := db.nextListID
		db.nextListID++
		db.lists[c.Key] = append(db.lists[c.Key], listRow{id: id, value: c.Value})

	case ballast.ListRemove:
		rows := db.lists[c.Key]
		var kept []listRow
		for _, r := range rows {
			if r.value != c.Value {
				kept = append(kept, r)
			}
		}
		db.lists[c.Key] = kept

	case ballast.ListTrim:
		rows := db.lists[c.Key]
		var kept []listRow
		for i, r := range rows {
			if i >= c.KeepFrom && i <= c.KeepTo {
				kept = append(kept, r)
			}
		}
		db.lists[c.Key] = kept

	case ballast.ListExpire:
		rows := db.lists[c.Key]
		for i := range rows {
			at := c.ExpireAt
			rows[i].expireAt = &at
		}

	case ballast.ListPersist:
		rows := db.lists[c.Key]
		for i := range rows {
			rows[i].expireAt = nil
		}

	case ballast.HashSetRange:
		fields, ok := db.hashes[c.Key]
		if !ok {
			fields = make(map[string]hashRow, len(c.Fields))
			db.hashes[c.Key] = fields
		}
		for f, v := range c.Fields {
			row := fields[f]
			row.value = v
			fields[f] = row
		}

	case ballast.HashExpire:
		for f, r := range db.hashes[c.Key] {
			at := c.ExpireAt
			r.expireAt = &at
			db.hashes[c.Key][f] = r
		}

	case ballast.HashPersist:
		for f, r := range db.hashes[c.Key] {
			r.expireAt = nil
			db.hashes[c.Key][f] = r
		}

	case ballast.HashDelete:
		delete(db.hashes, c.Key)
	}

	return nil
}

func (tx *memTx) upsertSet(key, value string, score float64) {
	members, ok := tx.db.sets[key]
	if !ok {
		members = make(map[string]setRow)
		tx.db.sets[key] = members
	}
	row := members[value]
	row.score = score
	members[value] = row
}
