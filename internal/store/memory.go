package store

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store for tests. Writes honor the same natural
// keys as the SQL backends, and the Fail* hooks inject per-call failures so
// orchestrator error paths can be exercised without a database.
type MemStore struct {
	mu sync.Mutex

	AccessControlRows []Ref
	RoleRows          []Ref
	ScanTypeRows      []Ref
	BeamlineRows      []Ref
	RunRows           []Run

	UserRows     map[int64]User
	ProposalRows map[int64]Proposal
	DatasetRows  map[string]int64 // path -> id
	DatasetByID  map[int64]Dataset
	LinkRows     []Link

	nextDatasetID int64

	FailUser     func(u User) error
	FailProposal func(p Proposal) error
	FailDataset  func(d Dataset) error
	FailLink     func(l Link) error
}

var _ Store = (*MemStore)(nil)

func NewMemStore() *MemStore {
	return &MemStore{
		UserRows:      map[int64]User{},
		ProposalRows:  map[int64]Proposal{},
		DatasetRows:   map[string]int64{},
		DatasetByID:   map[int64]Dataset{},
		nextDatasetID: 1,
	}
}

func (m *MemStore) AccessControls(ctx context.Context) ([]Ref, error) {
	return m.AccessControlRows, nil
}
func (m *MemStore) Roles(ctx context.Context) ([]Ref, error)     { return m.RoleRows, nil }
func (m *MemStore) ScanTypes(ctx context.Context) ([]Ref, error) { return m.ScanTypeRows, nil }
func (m *MemStore) Beamlines(ctx context.Context) ([]Ref, error) { return m.BeamlineRows, nil }
func (m *MemStore) Runs(ctx context.Context) ([]Run, error)      { return m.RunRows, nil }

func (m *MemStore) UpsertUser(ctx context.Context, u User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailUser != nil {
		if err := m.FailUser(u); err != nil {
			return err
		}
	}
	if _, ok := m.UserRows[u.Badge]; !ok {
		m.UserRows[u.Badge] = u
	}
	return nil
}

func (m *MemStore) UpsertProposal(ctx context.Context, p Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailProposal != nil {
		if err := m.FailProposal(p); err != nil {
			return err
		}
	}
	if _, ok := m.ProposalRows[p.ID]; !ok {
		m.ProposalRows[p.ID] = p
	}
	return nil
}

func (m *MemStore) InsertDataset(ctx context.Context, d Dataset) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDataset != nil {
		if err := m.FailDataset(d); err != nil {
			return 0, err
		}
	}
	if id, ok := m.DatasetRows[d.Path]; ok {
		return id, nil
	}
	id := m.nextDatasetID
	m.nextDatasetID++
	m.DatasetRows[d.Path] = id
	m.DatasetByID[id] = d
	return id, nil
}

func (m *MemStore) LinkExperimenter(ctx context.Context, l Link) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailLink != nil {
		if err := m.FailLink(l); err != nil {
			return err
		}
	}
	for _, have := range m.LinkRows {
		if have.DatasetID == l.DatasetID && have.UserBadge == l.UserBadge && have.ProposalID == l.ProposalID {
			return nil
		}
	}
	m.LinkRows = append(m.LinkRows, l)
	return nil
}

func (m *MemStore) InsertRun(ctx context.Context, r Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, have := range m.RunRows {
		if have.ID == r.ID {
			return nil
		}
	}
	m.RunRows = append(m.RunRows, r)
	return nil
}

func (m *MemStore) Users(ctx context.Context, level string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []User
	for _, u := range m.UserRows {
		if level == "" || u.AccessLevel == level {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
