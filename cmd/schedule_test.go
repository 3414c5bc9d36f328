package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/beamline-tools/beamsync/internal/config"
	"github.com/stretchr/testify/require"
)

func TestRunQueryServiceNeedsRunAndBeamline(t *testing.T) {
	cfg := config.Config{ScheduleURL: "http://sched.example/sched-api"}

	err := runQuery(context.Background(), cfg, "", "$")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no schedule source")

	cfg.Run = "2024-1"
	err = runQuery(context.Background(), cfg, "", "$")
	require.Error(t, err)
	require.Contains(t, err.Error(), "no schedule source")
}

func TestRunQueryReadsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "schedule.json")
	doc := `[{"activityId": 7, "beamtime": {"proposal": {"gupId": 42}}}]`
	require.NoError(t, os.WriteFile(file, []byte(doc), 0o644))

	// No run or beamline configured: the file path must not need them.
	err := runQuery(context.Background(), config.Config{}, file, "$..gupId")
	require.NoError(t, err)
}
