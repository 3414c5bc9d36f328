// Package refdata bulk-loads the small categorical tables (access levels,
// roles, scan types, beamlines, runs) into name-keyed maps for foreign-key
// resolution during reconciliation.
package refdata

import (
	"context"
	"fmt"

	"github.com/beamline-tools/beamsync/internal/store"
)

// Well-known reference names the orchestrator resolves on every run.
const (
	RolePI        = "PI"
	RoleCI        = "CI"
	ScanTypeStep  = "step"
	ScanTypeFly   = "fly"
	AccessVisitor = "Visitor"
)

// Cache holds every reference table, indexed by name. Built once at startup
// and read-only afterwards; lookups are safe for concurrent use. Every
// downstream insert depends on these ids, so a load failure is fatal to the
// run, while a lookup miss after construction is a per-record condition the
// caller handles.
type Cache struct {
	accessControls map[string]store.Ref
	roles          map[string]store.Ref
	scanTypes      map[string]store.Ref
	beamlines      map[string]store.Ref
	runs           map[string]store.Run
}

// Load performs one full-table read per reference kind.
func Load(ctx context.Context, st store.Store) (*Cache, error) {
	c := &Cache{}

	acs, err := st.AccessControls(ctx)
	if err != nil {
		return nil, fmt.Errorf("refdata: %w", err)
	}
	c.accessControls = byName(acs)

	roles, err := st.Roles(ctx)
	if err != nil {
		return nil, fmt.Errorf("refdata: %w", err)
	}
	c.roles = byName(roles)

	scans, err := st.ScanTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("refdata: %w", err)
	}
	c.scanTypes = byName(scans)

	bls, err := st.Beamlines(ctx)
	if err != nil {
		return nil, fmt.Errorf("refdata: %w", err)
	}
	c.beamlines = byName(bls)

	runs, err := st.Runs(ctx)
	if err != nil {
		return nil, fmt.Errorf("refdata: %w", err)
	}
	c.runs = make(map[string]store.Run, len(runs))
	for _, r := range runs {
		c.runs[r.Name] = r
	}

	return c, nil
}

func byName(refs []store.Ref) map[string]store.Ref {
	m := make(map[string]store.Ref, len(refs))
	for _, r := range refs {
		m[r.Name] = r
	}
	return m
}

// AccessControl resolves an access level name to its id.
func (c *Cache) AccessControl(name string) (int64, bool) { return refID(c.accessControls, name) }

// Role resolves an experiment role name to its id.
func (c *Cache) Role(name string) (int64, bool) { return refID(c.roles, name) }

// ScanType resolves a scan type name to its id.
func (c *Cache) ScanType(name string) (int64, bool) { return refID(c.scanTypes, name) }

// Beamline resolves a beamline name to its id.
func (c *Cache) Beamline(name string) (int64, bool) { return refID(c.beamlines, name) }

// Run resolves a synchrotron run name to its id.
func (c *Cache) Run(name string) (int64, bool) {
	r, ok := c.runs[name]
	if !ok {
		return 0, false
	}
	return r.ID, true
}

func refID(m map[string]store.Ref, name string) (int64, bool) {
	r, ok := m[name]
	if !ok {
		return 0, false
	}
	return r.ID, true
}
