package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/erbridge/erbridge/pkg/failure"
)

// LifecycleState names a provider lifecycle transition.
type LifecycleState string

const (
	LifecycleBuilt         LifecycleState = "built"
	LifecycleDestroying    LifecycleState = "destroying"
	LifecycleDestroyed     LifecycleState = "destroyed"
	LifecycleReinitialized LifecycleState = "reinitialized"
)

// FailureRecord is a failure returned to an SDK caller
type FailureRecord struct {
	ID         int64     `json:"id"`
	InstanceID string    `json:"instance_id"`
	Facade     string    `json:"facade"`
	Kind       string    `json:"kind"`
	Code       *int64    `json:"code,omitempty"`
	Message    string    `json:"message"`
	Signature  *string   `json:"signature,omitempty"`
	Parameters *string   `json:"parameters,omitempty"` // JSON object, insertion ordered
	Timestamp  time.Time `json:"timestamp"`
}

// LifecycleRecord is one provider lifecycle transition
type LifecycleRecord struct {
	ID         int64          `json:"id"`
	InstanceID string         `json:"instance_id"`
	State      LifecycleState `json:"state"`
	Message    string         `json:"message"`
	Details    *string        `json:"details,omitempty"` // JSON blob
	Timestamp  time.Time      `json:"timestamp"`
}

// FailureFilter narrows ListFailures. Nil fields match everything.
type FailureFilter struct {
	InstanceID *string
	Kind       *string
	Limit      int
	Offset     int
}

// Journal receives failures and lifecycle transitions from a provider.
type Journal interface {
	RecordFailure(ctx context.Context, record *FailureRecord) error
	RecordLifecycle(ctx context.Context, record *LifecycleRecord) error
}

// Store defines the interface for the persistence layer
type Store interface {
	Journal

	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Queries
	ListFailures(ctx context.Context, filter FailureFilter) ([]*FailureRecord, error)
	ListLifecycle(ctx context.Context, instanceID *string, limit, offset int) ([]*LifecycleRecord, error)
	CountFailuresByKind(ctx context.Context, instanceID *string) (map[string]int64, error)

	// Maintenance
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
	HealthCheck(ctx context.Context) error
}

// NewFailureRecord builds a record from an error returned by a facade. Errors
// that are not failures are journaled as internal.
func NewFailureRecord(instanceID, facade string, err error) *FailureRecord {
	rec := &FailureRecord{
		InstanceID: instanceID,
		Facade:     facade,
		Kind:       string(failure.KindInternal),
		Message:    err.Error(),
		Timestamp:  time.Now(),
	}

	var f *failure.Failure
	if !errors.As(err, &f) {
		return rec
	}

	rec.Kind = string(f.Kind)
	rec.Code = f.Code
	rec.Message = f.Message
	if f.Signature != "" {
		sig := f.Signature
		rec.Signature = &sig
	}
	if f.Parameters.Len() > 0 {
		if data, err := json.Marshal(f.Parameters); err == nil {
			params := string(data)
			rec.Parameters = &params
		}
	}
	return rec
}
