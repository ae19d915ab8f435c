package memory

import (
	"context"
	"sort"
	"time"
)

// Inspection and seeding helpers. The production backends expose no read
// path; these exist so tests can observe committed state and pre-create the
// job rows that the job engine would normally have inserted.

// JobView is a snapshot of one job row.
type JobView struct {
	ID        string
	StateID   int64
	StateName string
	ExpireAt  *time.Time
}

// StateView is a snapshot of one state-history row.
type StateView struct {
	ID        int64
	JobID     string
	Name      string
	Reason    string
	Data      []byte
	CreatedAt time.Time
}

// SeedJob creates an empty job row, as the job engine would on job creation.
func (s *Store) SeedJob(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.jobs[id] = jobRow{}
}

// Job returns a snapshot of the job row, if present.
func (s *Store) Job(id string) (JobView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.db.jobs[id]
	if !ok {
		return JobView{}, false
	}
	return JobView{ID: id, StateID: j.stateID, StateName: j.stateName, ExpireAt: copyTime(j.expireAt)}, true
}

// JobStates returns the state-history rows for a job, oldest first.
func (s *Store) JobStates(jobID string) []StateView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []StateView
	for _, r := range s.db.states {
		if r.jobID == jobID {
			out = append(out, StateView{
				ID:        r.id,
				JobID:     r.jobID,
				Name:      r.name,
				Reason:    r.reason,
				Data:      r.data,
				CreatedAt: r.createdAt,
			})
		}
	}
	return out
}

// CounterValue returns the sum of all delta rows for a counter key.
func (s *Store) CounterValue(key string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, r := range s.db.counters {
		if r.key == key {
			sum += r.value
		}
	}
	return sum
}

// CounterRows returns how many delta rows exist for a counter key.
func (s *Store) CounterRows(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.db.counters {
		if r.key == key {
			n++
		}
	}
	return n
}

// SetScore returns the score of a set member, if present.
func (s *Store) SetScore(key, value string) (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.db.sets[key][value]
	return r.score, ok
}

// SetMembers returns the members of a set in lexical order.
func (s *Store) SetMembers(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for v := range s.db.sets[key] {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// List returns the list values in insertion order.
func (s *Store) List(key string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.db.lists[key]
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.value
	}
	return out
}

// Hash returns a copy of the hash's fields.
func (s *Store) Hash(key string) map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	fields := s.db.hashes[key]
	out := make(map[string]string, len(fields))
	for f, r := range fields {
		out[f] = r.value
	}
	return out
}

// Queue returns the job ids enqueued on a queue, oldest first.
func (s *Store) Queue(name string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.db.queues[name]...)
}

// SweepExpired deletes every row whose expiry is at or before now. It
// mirrors the SQL backends' maintenance hook so maintain.Runner can be
// exercised without a database.
func (s *Store) SweepExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64

	expired := func(at *time.Time) bool { return at != nil && !at.After(now) }

	doomedJobs := make(map[string]bool)
	for id, j := range s.db.jobs {
		if expired(j.expireAt) {
			doomedJobs[id] = true
			delete(s.db.jobs, id)
			removed++
		}
	}
	// Expired jobs take their state history with them.
	states := s.db.states[:0]
	for _, r := range s.db.states {
		if doomedJobs[r.jobID] {
			removed++
			continue
		}
		states = append(states, r)
	}
	s.db.states = states
	kept := s.db.counters[:0]
	for _, r := range s.db.counters {
		if expired(r.expireAt) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.db.counters = kept
	for key, members := range s.db.sets {
		for v, r := range members {
			if expired(r.expireAt) {
				delete(members, v)
				removed++
			}
		}
		if len(members) == 0 {
			delete(s.db.sets, key)
		}
	}
	for key, rows := range s.db.lists {
		left := rows[:0]
		for _, r := range rows {
			if expired(r.expireAt) {
				removed++
				continue
			}
			left = append(left, r)
		}
		if len(left) == 0 {
			delete(s.db.lists, key)
			continue
		}
		s.db.lists[key] = left
	}
	for key, fields := range s.db.hashes {
		for f, r := range fields {
			if expired(r.expireAt) {
				delete(fields, f)
				removed++
			}
		}
		if len(fields) == 0 {
			delete(s.db.hashes, key)
		}
	}
	return removed, nil
}

// AggregateCounters folds up to limit delta rows, preserving each key's
// sum. Never-expiring deltas fold into a row that stays never-expiring;
// expiring deltas fold into a row carrying their latest expiry, so a later
// sweep removes only what was already doomed.
func (s *Store) AggregateCounters(_ context.Context, limit int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 || len(s.db.counters) == 0 {
		return 0, nil
	}
	if limit > len(s.db.counters) {
		limit = len(s.db.counters)
	}

	type class struct {
		key      string
		expiring bool
	}
	folded := int64(limit)
	sums := make(map[class]int64)
	expiries := make(map[class]*time.Time)
	var classes []class
	for _, r := range s.db.counters[:limit] {
		c := class{key: r.key, expiring: r.expireAt != nil}
		if _, seen := sums[c]; !seen {
			classes = append(classes, c)
		}
		sums[c] += r.value
		if r.expireAt != nil {
			cur := expiries[c]
			if cur == nil || r.expireAt.After(*cur) {
				expiries[c] = copyTime(r.expireAt)
			}
		}
	}

	rest := append([]counterRow(nil), s.db.counters[limit:]...)
	s.db.counters = s.db.counters[:0]
	for _, c := range classes {
		s.db.counters = append(s.db.counters, counterRow{key: c.key, value: sums[c], expireAt: expiries[c]})
	}
	s.db.counters = append(s.db.counters, rest...)
	return folded, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
