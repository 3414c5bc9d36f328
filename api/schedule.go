package api

// Wire types for the facility scheduling service.
//
// One schedule document is a JSON array of Activity records, fetched from
// GET .../activity/findByRunNameAndBeamlineId/{runName}/{beamlineId}
// or read back from a cached file. The service emits many more fields than
// reconciliation needs; only the fields read downstream are modeled here.

// Activity is one scheduled beamtime slot on an instrument.
type Activity struct {
	ActivityID   int64    `json:"activityId"`
	ActivityName string   `json:"activityName,omitempty"`
	StartTime    string   `json:"startTime,omitempty"`
	EndTime      string   `json:"endTime,omitempty"`
	Beamtime     Beamtime `json:"beamtime"`
	Station      *Station `json:"station,omitempty"`
}

// Beamtime is the scheduling record embedded in an Activity. It owns the
// Proposal and the beamline assignment the slot was granted on.
type Beamtime struct {
	BeamtimeID      int64     `json:"beamtimeId"`
	Proposal        Proposal  `json:"proposal"`
	GrantedBeamline *Beamline `json:"grantedBeamline,omitempty"`
	ScheduledShifts int       `json:"scheduledShifts,omitempty"`
}

// Proposal is a submitted research request and its experimenter roster.
type Proposal struct {
	GupID           int64          `json:"gupId"`
	Title           string         `json:"proposalTitle,omitempty"`
	ProprietaryFlag Flag           `json:"proprietaryFlag,omitempty"`
	MailInFlag      Flag           `json:"mailInFlag,omitempty"`
	Experimenters   []Experimenter `json:"experimenters,omitempty"`
}

// Experimenter is a person named on a Proposal. Badge is the facility badge
// number in string form; some historical records carry non-numeric badges.
type Experimenter struct {
	GupExperimenterID int64  `json:"gupExperimenterId"`
	Badge             string `json:"badge"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Institution       string `json:"institution"`
	Email             string `json:"email,omitempty"`
	PIFlag            Flag   `json:"piFlag,omitempty"`
}

// Beamline identifies the instrument an Activity was granted on.
type Beamline struct {
	BeamlineNum  int64  `json:"beamlineNum,omitempty"`
	BeamlineID   string `json:"beamlineId,omitempty"`
	BeamlineName string `json:"beamlineName,omitempty"`
}

// Station is the physical endstation assignment within a beamline.
type Station struct {
	StationID   int64  `json:"stationId,omitempty"`
	StationName string `json:"stationName,omitempty"`
}

// SyncRun is one synchrotron operating period as published by the scheduling
// service, consumed by the runs reference-table loader.
type SyncRun struct {
	RunID     int64  `json:"runId"`
	RunName   string `json:"runName"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Version   int64  `json:"version,omitempty"`
}
