package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/ahrav/go-autolab/internal/domain"
)

type analyzeFlags struct {
	eventType    string
	severity     string
	startFrame   int
	endFrame     int
	egoSpeed     float64
	leadDistance float64
	roadType     string
	weather      string
	cutIn        bool
	pedestrian   bool
	description  string
}

func newAnalyzeCmd(opts *rootOptions) *cobra.Command {
	var f analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze one ad-hoc event and print the result as JSON",
		Example: `  autolab analyze --type cut_in --severity high --weather rain
  autolab analyze --in-memory --type pedestrian --ego-speed 12.5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.service.Analyze(cmd.Context(), f.event(cmd))
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.eventType, "type", "", "event type, e.g. cut_in or pedestrian")
	flags.StringVar(&f.severity, "severity", string(domain.SeverityMedium), "low, medium or high")
	flags.IntVar(&f.startFrame, "start-frame", 0, "first frame of the event")
	flags.IntVar(&f.endFrame, "end-frame", 0, "last frame of the event")
	flags.Float64Var(&f.egoSpeed, "ego-speed", 0, "ego speed in m/s")
	flags.Float64Var(&f.leadDistance, "lead-distance", 0, "distance to the lead vehicle in meters")
	flags.StringVar(&f.roadType, "road-type", "", "road type, e.g. highway")
	flags.StringVar(&f.weather, "weather", "", "weather, e.g. rain")
	flags.BoolVar(&f.cutIn, "cut-in", false, "a vehicle cut in")
	flags.BoolVar(&f.pedestrian, "pedestrian", false, "a pedestrian was involved")
	flags.StringVar(&f.description, "description", "", "free-form description")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

// event builds the domain event. Optional measurements are only set when
// their flag was given.
func (f analyzeFlags) event(cmd *cobra.Command) domain.Event {
	event := domain.Event{
		Type:           domain.EventType(f.eventType),
		Severity:       domain.Severity(f.severity),
		StartFrame:     f.startFrame,
		EndFrame:       max(f.endFrame, f.startFrame),
		RoadType:       f.roadType,
		Weather:        f.weather,
		CutInFlag:      f.cutIn || domain.EventType(f.eventType) == domain.EventCutIn,
		PedestrianFlag: f.pedestrian || domain.EventType(f.eventType) == domain.EventPedestrian,
		Description:    f.description,
	}
	if cmd.Flags().Changed("ego-speed") {
		v := f.egoSpeed
		event.EgoSpeedMPS = &v
	}
	if cmd.Flags().Changed("lead-distance") {
		v := f.leadDistance
		event.LeadDistanceM = &v
	}
	return event
}
