package ballast

import "time"

// Command is one deferred mutation recorded by a Transaction. Commands are
// plain data: they carry the validated parameters of the call that produced
// them and nothing else, so a batch can be inspected or tested without
// executing it. Backends interpret commands during Commit.
//
// The interface is sealed; the set of commands is fixed by the mutation API.
type Command interface {
	// Kind returns a stable name for the command, used in logs and errors.
	Kind() string

	isCommand()
}

// ── Job commands ──

// JobExpire schedules a job row for expiry at an absolute time.
type JobExpire struct {
	JobID    string
	ExpireAt time.Time
}

// JobPersist clears a job row's expiry.
type JobPersist struct {
	JobID string
}

// JobSetState appends a state-history row and repoints the job's current
// state reference and name to it. Both effects are indivisible: a job never
// names a state that is not in its history.
type JobSetState struct {
	JobID     string
	Name      string
	Reason    string
	Data      []byte
	CreatedAt time.Time
}

// StateAdd appends a state-history row without touching the job's current
// state pointer.
type StateAdd struct {
	JobID     string
	Name      string
	Reason    string
	Data      []byte
	CreatedAt time.Time
}

// ── Queue commands ──

// QueueAdd enqueues a job id on a logical queue. The queue provider resolved
// for Queue decides the physical enqueue mechanism.
type QueueAdd struct {
	Queue string
	JobID string
}

// ── Counter commands ──

// CounterAdd inserts one signed delta row for a counter key. The counter's
// aggregate value is the sum of its delta rows; rows are never updated in
// place. ExpireAt is nil for non-expiring deltas.
type CounterAdd struct {
	Key      string
	Delta    int64
	ExpireAt *time.Time
}

// ── Set commands ──

// SetAdd upserts one (key, value) member of a sorted set. Re-adding an
// existing member updates its score, never duplicates the row.
type SetAdd struct {
	Key   string
	Value string
	Score float64
}

// SetAddRange upserts a batch of members with score zero.
type SetAddRange struct {
	Key    string
	Values []string
}

// SetRemove deletes one (key, value) member.
type SetRemove struct {
	Key   string
	Value string
}

// SetExpire schedules every member of a set for expiry at an absolute time.
type SetExpire struct {
	Key      string
	ExpireAt time.Time
}

// SetPersist clears expiry on every member of a set.
type SetPersist struct {
	Key string
}

// SetDelete removes every member of a set.
type SetDelete struct {
	Key string
}

// ── List commands ──

// ListInsert appends a value to a list. List order is insertion order.
type ListInsert struct {
	Key   string
	Value string
}

// ListRemove deletes every occurrence of a value from a list.
type ListRemove struct {
	Key   string
	Value string
}

// ListTrim deletes list rows outside a positional window. KeepFrom and
// KeepTo are 0-based inclusive bounds over insertion order; backends convert
// them to their native numbering.
type ListTrim struct {
	Key      string
	KeepFrom int
	KeepTo   int
}

// ListExpire schedules every row of a list for expiry at an absolute time.
type ListExpire struct {
	Key      string
	ExpireAt time.Time
}

// ListPersist clears expiry on every row of a list.
type ListPersist struct {
	Key string
}

// ── Hash commands ──

// HashSetRange upserts a batch of (field, value) pairs in a hash. An
// existing (key, field) row has its value updated, never duplicated.
type HashSetRange struct {
	Key    string
	Fields map[string]string
}

// HashExpire schedules every field of a hash for expiry at an absolute time.
type HashExpire struct {
	Key      string
	ExpireAt time.Time
}

// HashPersist clears expiry on every field of a hash.
type HashPersist struct {
	Key string
}

// HashDelete removes every field of a hash.
type HashDelete struct {
	Key string
}

func (JobExpire) Kind() string    { return "job.expire" }
func (JobPersist) Kind() string   { return "job.persist" }
func (JobSetState) Kind() string  { return "job.set_state" }
func (StateAdd) Kind() string     { return "state.add" }
func (QueueAdd) Kind() string     { return "queue.add" }
func (CounterAdd) Kind() string   { return "counter.add" }
func (SetAdd) Kind() string       { return "set.add" }
func (SetAddRange) Kind() string  { return "set.add_range" }
func (SetRemove) Kind() string    { return "set.remove" }
func (SetExpire) Kind() string    { return "set.expire" }
func (SetPersist) Kind() string   { return "set.persist" }
func (SetDelete) Kind() string    { return "set.delete" }
func (ListInsert) Kind() string   { return "list.insert" }
func (ListRemove) Kind() string   { return "list.remove" }
func (ListTrim) Kind() string     { return "list.trim" }
func (ListExpire) Kind() string   { return "list.expire" }
func (ListPersist) Kind() string  { return "list.persist" }
func (HashSetRange) Kind() string { return "hash.set_range" }
func (HashExpire) Kind() string   { return "hash.expire" }
func (HashPersist) Kind() string  { return "hash.persist" }
func (HashDelete) Kind() string   { return "hash.delete" }

func (JobExpire) isCommand()    {}
func (JobPersist) isCommand()   {}
func (JobSetState) isCommand()  {}
func (StateAdd) isCommand()     {}
func (QueueAdd) isCommand()     {}
func (CounterAdd) isCommand()   {}
func (SetAdd) isCommand()       {}
func (SetAddRange) isCommand()  {}
func (SetRemove) isCommand()    {}
func (SetExpire) isCommand()    {}
func (SetPersist) isCommand()   {}
func (SetDelete) isCommand()    {}
func (ListInsert) isCommand()   {}
func (ListRemove) isCommand()   {}
func (ListTrim) isCommand()     {}
func (ListExpire) isCommand()   {}
func (ListPersist) isCommand()  {}
func (HashSetRange) isCommand() {}
func (HashExpire) isCommand()   {}
func (HashPersist) isCommand()  {}
func (HashDelete) isCommand()   {}

// cloneCommand copies a command's interior data so inspected commands can
// be mutated without corrupting the recorded batch. Value-only commands
// copy implicitly.
func cloneCommand(cmd Command) Command {
	switch c := cmd.(type) {
	case JobSetState:
		c.Data = append([]byte(nil), c.Data...)
		return c
	case StateAdd:
		c.Data = append([]byte(nil), c.Data...)
		return c
	case SetAddRange:
		c.Values = append([]string(nil), c.Values...)
		return c
	case HashSetRange:
		fields := make(map[string]string, len(c.Fields))
		for k, v := range c.Fields {
			fields[k] = v
		}
		c.Fields = fields
		return c
	default:
		return cmd
	}
}
