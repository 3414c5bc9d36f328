package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/beamline-tools/beamsync/api"
	"github.com/beamline-tools/beamsync/internal/config"
	"github.com/beamline-tools/beamsync/internal/schedule"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/spf13/cobra"
)

var (
	inspectFile  string
	inspectQuery string
)

func init() {
	inspectCmd.Flags().StringVar(&inspectFile, "schedule-file", "", "Read the schedule document from a cached file instead of the service")
	inspectCmd.Flags().StringVar(&inspectQuery, "query", "", "JSONPath query to run against the raw document")
	inspectCmd.Flags().StringVar(&flagRun, "run", "", "Synchrotron run name")
	inspectCmd.Flags().StringVar(&flagBeamline, "beamline", "", "Beamline id")
	scheduleCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(scheduleCmd)
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Inspect schedule documents",
}

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print a PI summary of the schedule, or the result of a JSONPath query",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if flagRun != "" {
			cfg.Run = flagRun
		}
		if flagBeamline != "" {
			cfg.Beamline = flagBeamline
		}

		if inspectQuery != "" {
			return runQuery(cmd.Context(), cfg, inspectFile, inspectQuery)
		}

		activities, err := fetchActivities(cmd.Context(), cfg, inspectFile)
		if err != nil {
			return err
		}
		for _, act := range activities {
			p := act.Beamtime.Proposal
			pi := "(no PI)"
			for _, exp := range p.Experimenters {
				if exp.PIFlag.IsYes() {
					pi = exp.FirstName + " " + exp.LastName
					break
				}
			}
			fmt.Printf("activity %d  proposal %d  %-24s  %s\n", act.ActivityID, p.GupID, pi, p.Title)
		}
		return nil
	},
}

// runQuery evaluates a JSONPath expression against the undecoded document,
// so operators can poke at fields the typed model does not carry.
func runQuery(ctx context.Context, cfg config.Config, file, query string) error {
	x, err := jp.ParseString(query)
	if err != nil {
		return fmt.Errorf("invalid jsonpath %q: %w", query, err)
	}

	var raw []byte
	if file != "" {
		raw, err = os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read schedule file: %w", err)
		}
	} else {
		client, cerr := scheduleClient(cfg)
		if cerr != nil {
			return cerr
		}
		if cfg.Run == "" || cfg.Beamline == "" {
			return fmt.Errorf("no schedule source: pass --schedule-file, or --run and --beamline for the service")
		}
		raw, err = client.FetchRaw(ctx, cfg.Run, cfg.Beamline)
		if err != nil {
			return err
		}
	}

	doc, err := oj.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse schedule document: %w", err)
	}
	for _, result := range x.Get(doc) {
		fmt.Println(oj.JSON(result))
	}
	return nil
}

// fetchActivities obtains the decoded schedule from a cached file or the
// scheduling service. Shared by reconcile and schedule inspect.
func fetchActivities(ctx context.Context, cfg config.Config, file string) ([]api.Activity, error) {
	if file != "" {
		return schedule.LoadActivitiesFile(file)
	}
	client, err := scheduleClient(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Run == "" || cfg.Beamline == "" {
		return nil, fmt.Errorf("no schedule source: pass --schedule-file, or --run and --beamline for the service")
	}
	return client.FetchActivities(ctx, cfg.Run, cfg.Beamline)
}

func scheduleClient(cfg config.Config) (*schedule.Client, error) {
	if cfg.ScheduleURL == "" {
		return nil, fmt.Errorf("schedule_url is not configured")
	}
	return schedule.NewClient(cfg.ScheduleURL, cfg.ScheduleToken), nil
}
