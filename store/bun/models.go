package bunstore

import (
	"time"

	"github.com/uptrace/bun"
)

// jobModel is the job header row. state_id and state_name mirror the
// latest history row so readers never join for the current state.
type jobModel struct {
	bun.BaseModel `bun:"table:ballast_jobs"`

	ID        string     `bun:"id,pk"`
	StateID   *int64     `bun:"state_id"`
	StateName string     `bun:"state_name"`
	ExpireAt  *time.Time `bun:"expire_at"`
	CreatedAt time.Time  `bun:"created_at,notnull,default:current_timestamp"`
}

type jobStateModel struct {
	bun.BaseModel `bun:"table:ballast_job_states"`

	ID        int64     `bun:"id,pk,autoincrement"`
	JobID     string    `bun:"job_id,notnull"`
	Name      string    `bun:"name,notnull"`
	Reason    *string   `bun:"reason"`
	Data      []byte    `bun:"data,type:bytea"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp"`
}

// counterModel is append-only; reads sum the value column per key.
type counterModel struct {
	bun.BaseModel `bun:"table:ballast_counters"`

	ID       int64      `bun:"id,pk,autoincrement"`
	Key      string     `bun:"key,notnull"`
	Value    int64      `bun:"value,notnull"`
	ExpireAt *time.Time `bun:"expire_at"`
}

type setModel struct {
	bun.BaseModel `bun:"table:ballast_sets"`

	Key      string     `bun:"key,pk"`
	Value    string     `bun:"value,pk"`
	Score    float64    `bun:"score,notnull,default:0"`
	ExpireAt *time.Time `bun:"expire_at"`
}

type listModel struct {
	bun.BaseModel `bun:"table:ballast_lists"`

	ID       int64      `bun:"id,pk,autoincrement"`
	Key      string     `bun:"key,notnull"`
	Value    string     `bun:"value"`
	ExpireAt *time.Time `bun:"expire_at"`
}

type hashModel struct {
	bun.BaseModel `bun:"table:ballast_hashes"`

	Key      string     `bun:"key,pk"`
	Field    string     `bun:"field,pk"`
	Value    string     `bun:"value"`
	ExpireAt *time.Time `bun:"expire_at"`
}

type queueModel struct {
	bun.BaseModel `bun:"table:ballast_jobqueue"`

	ID         int64     `bun:"id,pk,autoincrement"`
	Queue      string    `bun:"queue,notnull"`
	JobID      string    `bun:"job_id,notnull"`
	EnqueuedAt time.Time `bun:"enqueued_at,notnull,default:current_timestamp"`
}
