// Package store is the persistence boundary for reconciliation. The
// orchestrator only sees the Store interface; Postgres, SQLite, and
// in-memory implementations live behind it.
package store

import (
	"context"
	"time"
)

// Ref is the shape shared by every reference table: a small categorical
// record resolved by name.
type Ref struct {
	ID          int64
	Name        string
	Description string
}

// Run is one synchrotron operating period.
type Run struct {
	ID    int64
	Name  string
	Start time.Time
	End   time.Time
}

// User is one facility user row, keyed by badge number.
type User struct {
	Badge           int64
	Username        string
	FirstName       string
	LastName        string
	Institution     string
	Email           string
	AccessControlID int64

	// AccessLevel is populated on reads that join the access-control table;
	// it is ignored on writes.
	AccessLevel string
}

// Proposal is one research proposal row, keyed by the proposal (GUP) id.
type Proposal struct {
	ID              int64
	Title           string
	ProprietaryFlag string
	MailInFlag      string
	Status          string
}

// Dataset is one discovered raw-data file to persist. ID is generated by
// the store on insert.
type Dataset struct {
	Path       string
	AcquiredAt time.Time
	BeamlineID int64
	RunID      int64
	ScanTypeID int64
}

// Link joins a dataset to one experimenter on the owning proposal, with the
// role the person held.
type Link struct {
	DatasetID  int64
	UserBadge  int64
	ProposalID int64
	RoleID     int64
}

// Store is every database operation reconciliation needs. All writes are
// idempotent: users, proposals, and links are insert-or-ignore on their
// natural keys, and datasets are upserted by path with the row id returned
// either way, so re-running a reconciliation is safe.
type Store interface {
	// Reference loads, one full-table read each, performed once at startup.
	AccessControls(ctx context.Context) ([]Ref, error)
	Roles(ctx context.Context) ([]Ref, error)
	ScanTypes(ctx context.Context) ([]Ref, error)
	Beamlines(ctx context.Context) ([]Ref, error)
	Runs(ctx context.Context) ([]Run, error)

	UpsertUser(ctx context.Context, u User) error
	UpsertProposal(ctx context.Context, p Proposal) error
	InsertDataset(ctx context.Context, d Dataset) (int64, error)
	LinkExperimenter(ctx context.Context, l Link) error

	InsertRun(ctx context.Context, r Run) error
	Users(ctx context.Context, level string) ([]User, error)

	Close() error
}
