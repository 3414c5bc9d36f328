package reconcile

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/beamline-tools/beamsync/api"
	"github.com/beamline-tools/beamsync/internal/discover"
	"github.com/beamline-tools/beamsync/internal/refdata"
	"github.com/beamline-tools/beamsync/internal/schedule"
	"github.com/beamline-tools/beamsync/internal/store"
	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore() *store.MemStore {
	m := store.NewMemStore()
	m.AccessControlRows = []store.Ref{{ID: 1, Name: "Visitor"}}
	m.RoleRows = []store.Ref{{ID: 10, Name: "PI"}, {ID: 11, Name: "CI"}}
	m.ScanTypeRows = []store.Ref{{ID: 20, Name: "step"}}
	m.BeamlineRows = []store.Ref{{ID: 30, Name: "2-ID-E"}}
	m.RunRows = []store.Run{{ID: 40, Name: "2024-1"}}
	return m
}

func leeSchedule(piFlag api.Flag, extra ...api.Experimenter) *schedule.Index {
	exps := append([]api.Experimenter{
		{Badge: "1234", FirstName: "Ana", LastName: "Lee", Institution: "NWU",
			Email: "ana@nwu.edu", PIFlag: piFlag},
	}, extra...)
	return schedule.NewIndex([]api.Activity{{
		ActivityID: 7,
		Beamtime: api.Beamtime{Proposal: api.Proposal{
			GupID:         42,
			Title:         "Trace metals in diatoms",
			MailInFlag:    api.FlagNo,
			Experimenters: exps,
		}},
	}})
}

func leeTree(t *testing.T, files ...string) billy.Filesystem {
	t.Helper()
	fs := memfs.New()
	if len(files) == 0 {
		files = []string{"/data/Lee/2024_scan.mda/scan001.mda"}
	}
	for _, f := range files {
		require.NoError(t, util.WriteFile(fs, f, []byte("x"), 0o644))
	}
	return fs
}

func newReconciler(t *testing.T, st store.Store, idx *schedule.Index) *Reconciler {
	t.Helper()
	refs, err := refdata.Load(context.Background(), st)
	require.NoError(t, err)
	return &Reconciler{
		Store:    st,
		Refs:     refs,
		Index:    idx,
		Beamline: "2-ID-E",
		RunName:  "2024-1",
	}
}

func walker(fs billy.Filesystem) *discover.Walker {
	return &discover.Walker{FS: fs, TerminalSuffix: ".mda", Extensions: []string{".mda"}, MaxDepth: 2}
}

func TestReconcileMatchedDirectory(t *testing.T) {
	st := seededStore()
	r := newReconciler(t, st, leeSchedule(api.FlagYes))

	res, err := r.Run(context.Background(), walker(leeTree(t)), "/data/Lee")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Matched)
	assert.Equal(t, 0, res.Unmatched)
	assert.Equal(t, 0, res.RecordErrors)

	require.Contains(t, st.UserRows, int64(1234))
	u := st.UserRows[1234]
	assert.Equal(t, "ana@nwu.edu", u.Username)
	assert.Equal(t, int64(1), u.AccessControlID)

	require.Contains(t, st.ProposalRows, int64(42))
	assert.Equal(t, "Done", st.ProposalRows[42].Status)
	assert.Equal(t, "N", st.ProposalRows[42].MailInFlag)

	require.Len(t, st.DatasetRows, 1)
	dsID, ok := st.DatasetRows["/data/Lee/2024_scan.mda/scan001.mda"]
	require.True(t, ok)
	d := st.DatasetByID[dsID]
	assert.Equal(t, int64(30), d.BeamlineID)
	assert.Equal(t, int64(40), d.RunID)
	assert.Equal(t, int64(20), d.ScanTypeID)
	assert.False(t, d.AcquiredAt.IsZero())

	require.Len(t, st.LinkRows, 1)
	l := st.LinkRows[0]
	assert.Equal(t, dsID, l.DatasetID)
	assert.Equal(t, int64(1234), l.UserBadge)
	assert.Equal(t, int64(42), l.ProposalID)
	assert.Equal(t, int64(10), l.RoleID) // PI role
}

func TestReconcileNoPIMatchWritesNothing(t *testing.T) {
	st := seededStore()
	r := newReconciler(t, st, leeSchedule(api.FlagUnset))

	res, err := r.Run(context.Background(), walker(leeTree(t)), "/data/Lee")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Unmatched)
	assert.Empty(t, st.UserRows)
	assert.Empty(t, st.ProposalRows)
	assert.Empty(t, st.DatasetRows)
	assert.Empty(t, st.LinkRows)
}

func TestReconcileWholeRosterLinked(t *testing.T) {
	st := seededStore()
	idx := leeSchedule(api.FlagYes,
		api.Experimenter{Badge: "5678", FirstName: "Bo", LastName: "Okafor", PIFlag: api.FlagNo},
	)
	r := newReconciler(t, st, idx)

	_, err := r.Run(context.Background(), walker(leeTree(t)), "/data/Lee")
	require.NoError(t, err)

	assert.Len(t, st.UserRows, 2)
	require.Len(t, st.LinkRows, 2)
	roles := map[int64]int64{}
	for _, l := range st.LinkRows {
		roles[l.UserBadge] = l.RoleID
	}
	assert.Equal(t, int64(10), roles[1234]) // PI
	assert.Equal(t, int64(11), roles[5678]) // CI
}

func TestReconcileBadBadgeSkipsMemberOnly(t *testing.T) {
	st := seededStore()
	idx := leeSchedule(api.FlagYes,
		api.Experimenter{Badge: "no-badge", FirstName: "Bo", LastName: "Okafor"},
	)
	r := newReconciler(t, st, idx)

	res, err := r.Run(context.Background(), walker(leeTree(t)), "/data/Lee")
	require.NoError(t, err)

	assert.Len(t, st.UserRows, 1)
	assert.Len(t, st.LinkRows, 1)
	assert.Equal(t, int64(1234), st.LinkRows[0].UserBadge)
	assert.Equal(t, 1, res.RecordErrors)
}

func TestReconcileWideBadgeDoesNotShadowAnother(t *testing.T) {
	st := seededStore()
	// 5000000000 truncated to 32 bits is 705032704; both badges must land
	// as distinct user rows.
	idx := leeSchedule(api.FlagYes,
		api.Experimenter{Badge: "5000000000", FirstName: "Bo", LastName: "Okafor", Email: "bo@anl.gov"},
		api.Experimenter{Badge: "705032704", FirstName: "Wei", LastName: "Zhang", Email: "wei@anl.gov"},
	)
	r := newReconciler(t, st, idx)

	res, err := r.Run(context.Background(), walker(leeTree(t)), "/data/Lee")
	require.NoError(t, err)

	assert.Equal(t, 0, res.RecordErrors)
	assert.Equal(t, 3, res.Users)
	require.Contains(t, st.UserRows, int64(5000000000))
	require.Contains(t, st.UserRows, int64(705032704))
	assert.Equal(t, "Okafor", st.UserRows[5000000000].LastName)
	assert.Equal(t, "Zhang", st.UserRows[705032704].LastName)
	assert.Len(t, st.LinkRows, 3)
}

func TestReconcileProposalFailureAbortsDirectory(t *testing.T) {
	st := seededStore()
	st.FailProposal = func(store.Proposal) error { return errors.New("constraint violation") }
	r := newReconciler(t, st, leeSchedule(api.FlagYes))

	res, err := r.Run(context.Background(), walker(leeTree(t)), "/data/Lee")
	require.NoError(t, err)

	// Users were already written, but no dataset or link rows exist
	// without a proposal id.
	assert.Len(t, st.UserRows, 1)
	assert.Empty(t, st.DatasetRows)
	assert.Empty(t, st.LinkRows)
	assert.Equal(t, 1, res.RecordErrors)
}

func TestReconcileDatasetFailureBlocksOnlyThatFile(t *testing.T) {
	st := seededStore()
	st.FailDataset = func(d store.Dataset) error {
		if strings.Contains(d.Path, "scan002") {
			return errors.New("insert failed")
		}
		return nil
	}
	fs := leeTree(t,
		"/data/Lee/2024_scan.mda/scan001.mda",
		"/data/Lee/2024_scan.mda/scan002.mda",
		"/data/Lee/2024_scan.mda/scan003.mda",
	)
	r := newReconciler(t, st, leeSchedule(api.FlagYes))

	res, err := r.Run(context.Background(), walker(fs), "/data/Lee")
	require.NoError(t, err)

	assert.Len(t, st.DatasetRows, 2)
	assert.NotContains(t, st.DatasetRows, "/data/Lee/2024_scan.mda/scan002.mda")
	assert.Len(t, st.LinkRows, 2)
	assert.Equal(t, 1, res.RecordErrors)

	// Ordering invariant: every link references an inserted dataset.
	for _, l := range st.LinkRows {
		_, ok := st.DatasetByID[l.DatasetID]
		assert.True(t, ok)
	}
}

func TestReconcileMissingReferenceSkipsRecord(t *testing.T) {
	st := seededStore()
	r := newReconciler(t, st, leeSchedule(api.FlagYes))
	r.Beamline = "8-BM" // not in reference data

	res, err := r.Run(context.Background(), walker(leeTree(t)), "/data/Lee")
	require.NoError(t, err)

	assert.Empty(t, st.DatasetRows)
	assert.Empty(t, st.LinkRows)
	// Users and proposal still land; only the dataset insert depends on
	// the beamline id.
	assert.Len(t, st.UserRows, 1)
	assert.Len(t, st.ProposalRows, 1)
	assert.Equal(t, 1, res.RecordErrors)
}

func TestReconcileRerunIsIdempotent(t *testing.T) {
	st := seededStore()
	fs := leeTree(t)

	r1 := newReconciler(t, st, leeSchedule(api.FlagYes))
	_, err := r1.Run(context.Background(), walker(fs), "/data/Lee")
	require.NoError(t, err)

	r2 := newReconciler(t, st, leeSchedule(api.FlagYes))
	_, err = r2.Run(context.Background(), walker(fs), "/data/Lee")
	require.NoError(t, err)

	assert.Len(t, st.UserRows, 1)
	assert.Len(t, st.ProposalRows, 1)
	assert.Len(t, st.DatasetRows, 1)
	assert.Len(t, st.LinkRows, 1)
}

func TestReconcileUnderivableRootName(t *testing.T) {
	st := seededStore()
	r := newReconciler(t, st, leeSchedule(api.FlagYes))

	res, err := r.Run(context.Background(), walker(leeTree(t)), "/")
	require.NoError(t, err)
	assert.Zero(t, res.Directories)
}

func TestReconcileCancellation(t *testing.T) {
	st := seededStore()
	r := newReconciler(t, st, leeSchedule(api.FlagYes))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, walker(leeTree(t)), "/data/Lee")
	assert.ErrorIs(t, err, context.Canceled)
}
