// Package schedule holds the in-memory index over one decoded schedule
// document and the client that obtains the document.
package schedule

import "github.com/beamline-tools/beamsync/api"

// Index wraps the decoded activity list for one scheduling period. It is
// built once per run and read-only afterwards, so it is safe for concurrent
// lookups without locking.
type Index struct {
	activities []api.Activity
}

// NewIndex builds an index over activities in document order. The slice is
// retained, not copied; callers must not mutate it afterwards.
func NewIndex(activities []api.Activity) *Index {
	return &Index{activities: activities}
}

// Len returns the number of indexed activities.
func (ix *Index) Len() int { return len(ix.activities) }

// Activities exposes the underlying document-ordered slice for read-only
// iteration (summaries, debugging).
func (ix *Index) Activities() []api.Activity { return ix.activities }

// FindPrincipalInvestigator resolves a free-text last name to the scheduled
// activity whose principal investigator carries that name.
//
// Iteration order is document order: activities first, then each proposal's
// roster. The first experimenter whose last name matches exactly
// (case-sensitive) and whose PI flag is "Y" wins; name matches on non-PI
// roster members are skipped. A miss is an expected outcome, not an error —
// the caller skips the directory.
func (ix *Index) FindPrincipalInvestigator(lastName string) (*api.Activity, *api.Experimenter, bool) {
	for i := range ix.activities {
		act := &ix.activities[i]
		exps := act.Beamtime.Proposal.Experimenters
		for j := range exps {
			exp := &exps[j]
			if exp.LastName == lastName && exp.PIFlag.IsYes() {
				return act, exp, true
			}
		}
	}
	return nil, nil, false
}
