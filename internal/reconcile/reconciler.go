// Package reconcile drives the match-and-persist sequence: for every
// discovered dataset directory, resolve the principal investigator in the
// schedule, then write user, proposal, dataset, and experimenter-link rows
// in that order.
package reconcile

import (
	"context"
	"fmt"
	"log"
	"math"
	"path"
	"strconv"
	"strings"

	"github.com/RoaringBitmap/roaring"
	"github.com/beamline-tools/beamsync/api"
	"github.com/beamline-tools/beamsync/internal/discover"
	"github.com/beamline-tools/beamsync/internal/refdata"
	"github.com/beamline-tools/beamsync/internal/schedule"
	"github.com/beamline-tools/beamsync/internal/store"
)

// Reconciler holds the collaborators for one run. Beamline and RunName are
// the reference names the run was invoked for; every dataset row written
// resolves against them.
type Reconciler struct {
	Store    store.Store
	Refs     *refdata.Cache
	Index    *schedule.Index
	Beamline string
	RunName  string
	Verbose  bool

	// Natural keys already written this run. Users and proposals are
	// insert-or-ignore anyway; the bitmaps just save the round trips when
	// many directories share a roster.
	seenBadges    *roaring.Bitmap
	seenProposals *roaring.Bitmap
}

// Result counts what one run accomplished. Per-record failures are folded
// into RecordErrors; they never abort the run.
type Result struct {
	Directories  int
	Matched      int
	Unmatched    int
	Users        int
	Proposals    int
	Datasets     int
	Links        int
	RecordErrors int
}

func (r Result) String() string {
	return fmt.Sprintf("%d directories (%d matched, %d unmatched), %d users, %d proposals, %d datasets, %d links, %d record errors",
		r.Directories, r.Matched, r.Unmatched, r.Users, r.Proposals, r.Datasets, r.Links, r.RecordErrors)
}

// Run walks root with w and reconciles every dataset directory found. The
// candidate PI name is the final path component of root itself, fixed for
// the whole invocation. The only errors returned are context cancellation
// and an unwalkable root; everything else is logged and skipped.
func (r *Reconciler) Run(ctx context.Context, w *discover.Walker, root string) (Result, error) {
	var res Result

	name := path.Base(strings.TrimRight(root, "/"))
	if name == "" || name == "." || name == "/" {
		log.Printf("reconcile: no PI name derivable from root %q, nothing to do", root)
		return res, nil
	}

	err := w.Walk(root, func(ds discover.Dataset) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		res.Directories++
		r.processDirectory(ctx, name, ds, &res)
		return nil
	})
	if err != nil {
		return res, err
	}
	return res, ctx.Err()
}

// processDirectory runs the ordered per-directory sequence. Step order is
// load-bearing: links consume the dataset id, datasets consume the proposal
// id, so a proposal failure stops the directory and a dataset failure stops
// only that file's links.
func (r *Reconciler) processDirectory(ctx context.Context, name string, ds discover.Dataset, res *Result) {
	act, pi, ok := r.Index.FindPrincipalInvestigator(name)
	if !ok {
		res.Unmatched++
		log.Printf("reconcile: no scheduled PI named %q, skipping %s", name, ds.Path)
		return
	}
	res.Matched++
	if r.Verbose {
		log.Printf("reconcile: %s matched activity %d (PI %s %s, proposal %d)",
			ds.Path, act.ActivityID, pi.FirstName, pi.LastName, act.Beamtime.Proposal.GupID)
	}

	proposal := act.Beamtime.Proposal
	r.upsertRoster(ctx, proposal, res)

	if !r.upsertProposal(ctx, proposal, res) {
		// No proposal id to hang datasets on; the directory is done.
		return
	}

	for _, f := range ds.Files {
		if ctx.Err() != nil {
			return
		}
		datasetID, ok := r.insertDataset(ctx, f, res)
		if !ok {
			continue
		}
		r.linkRoster(ctx, datasetID, proposal, res)
	}
}

// upsertRoster writes a user row for every experimenter on the proposal,
// not only the PI. A bad badge skips that person only.
func (r *Reconciler) upsertRoster(ctx context.Context, proposal api.Proposal, res *Result) {
	accessID, ok := r.Refs.AccessControl(refdata.AccessVisitor)
	if !ok {
		log.Printf("reconcile: access level %q not in reference data, skipping user upserts for proposal %d",
			refdata.AccessVisitor, proposal.GupID)
		res.RecordErrors++
		return
	}
	if r.seenBadges == nil {
		r.seenBadges = roaring.New()
	}
	for _, exp := range proposal.Experimenters {
		badge, err := strconv.ParseInt(exp.Badge, 10, 64)
		if err != nil {
			log.Printf("reconcile: bad badge %q for %s %s (proposal %d): %v",
				exp.Badge, exp.FirstName, exp.LastName, proposal.GupID, err)
			res.RecordErrors++
			continue
		}
		if inSeenRange(badge) && r.seenBadges.Contains(uint32(badge)) {
			continue
		}
		username := exp.Email
		if username == "" {
			username = exp.Badge
		}
		u := store.User{
			Badge:           badge,
			Username:        username,
			FirstName:       exp.FirstName,
			LastName:        exp.LastName,
			Institution:     exp.Institution,
			Email:           exp.Email,
			AccessControlID: accessID,
		}
		if err := r.Store.UpsertUser(ctx, u); err != nil {
			log.Printf("reconcile: upsert user badge %d: %v", badge, err)
			res.RecordErrors++
			continue
		}
		if inSeenRange(badge) {
			r.seenBadges.Add(uint32(badge))
		}
		res.Users++
	}
}

func (r *Reconciler) upsertProposal(ctx context.Context, proposal api.Proposal, res *Result) bool {
	if r.seenProposals == nil {
		r.seenProposals = roaring.New()
	}
	if inSeenRange(proposal.GupID) && r.seenProposals.Contains(uint32(proposal.GupID)) {
		return true
	}
	p := store.Proposal{
		ID:              proposal.GupID,
		Title:           proposal.Title,
		ProprietaryFlag: proposal.ProprietaryFlag.String(),
		MailInFlag:      proposal.MailInFlag.String(),
		Status:          "Done",
	}
	if err := r.Store.UpsertProposal(ctx, p); err != nil {
		log.Printf("reconcile: upsert proposal %d: %v", proposal.GupID, err)
		res.RecordErrors++
		return false
	}
	if inSeenRange(proposal.GupID) {
		r.seenProposals.Add(uint32(proposal.GupID))
	}
	res.Proposals++
	return true
}

// inSeenRange reports whether an id fits the 32-bit seen bitmaps. Out-of-range
// ids bypass the cache and hit the store's insert-or-ignore path instead of
// truncating onto another id's bit.
func inSeenRange(v int64) bool {
	return v >= 0 && v <= math.MaxUint32
}

// insertDataset resolves the reference ids and writes one dataset row. A
// missing reference or a failed insert stops this file only.
func (r *Reconciler) insertDataset(ctx context.Context, f discover.RawFile, res *Result) (int64, bool) {
	// TODO: detect fly scans by the presence of the auxiliary netCDF
	// capture files next to the .mda and resolve ScanTypeFly for those.
	scanTypeID, ok := r.Refs.ScanType(refdata.ScanTypeStep)
	if !ok {
		log.Printf("reconcile: scan type %q not in reference data, skipping %s", refdata.ScanTypeStep, f.Path)
		res.RecordErrors++
		return 0, false
	}
	beamlineID, ok := r.Refs.Beamline(r.Beamline)
	if !ok {
		log.Printf("reconcile: beamline %q not in reference data, skipping %s", r.Beamline, f.Path)
		res.RecordErrors++
		return 0, false
	}
	runID, ok := r.Refs.Run(r.RunName)
	if !ok {
		log.Printf("reconcile: run %q not in reference data, skipping %s", r.RunName, f.Path)
		res.RecordErrors++
		return 0, false
	}

	id, err := r.Store.InsertDataset(ctx, store.Dataset{
		Path:       f.Path,
		AcquiredAt: f.CreatedAt,
		BeamlineID: beamlineID,
		RunID:      runID,
		ScanTypeID: scanTypeID,
	})
	if err != nil {
		log.Printf("reconcile: insert dataset %s: %v", f.Path, err)
		res.RecordErrors++
		return 0, false
	}
	res.Datasets++
	return id, true
}

// linkRoster joins every roster member to the dataset with their role. One
// bad link never blocks the rest.
func (r *Reconciler) linkRoster(ctx context.Context, datasetID int64, proposal api.Proposal, res *Result) {
	for _, exp := range proposal.Experimenters {
		badge, err := strconv.ParseInt(exp.Badge, 10, 64)
		if err != nil {
			// Already reported during the user upsert pass.
			continue
		}
		roleName := refdata.RoleCI
		if exp.PIFlag.IsYes() {
			roleName = refdata.RolePI
		}
		roleID, ok := r.Refs.Role(roleName)
		if !ok {
			log.Printf("reconcile: role %q not in reference data, skipping badge %d on dataset %d",
				roleName, badge, datasetID)
			res.RecordErrors++
			continue
		}
		l := store.Link{
			DatasetID:  datasetID,
			UserBadge:  badge,
			ProposalID: proposal.GupID,
			RoleID:     roleID,
		}
		if err := r.Store.LinkExperimenter(ctx, l); err != nil {
			log.Printf("reconcile: link badge %d to dataset %d: %v", badge, datasetID, err)
			res.RecordErrors++
			continue
		}
		res.Links++
	}
}
