package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"calendarbot/internal/availability"
)

func slotsCmd() *cobra.Command {
	var (
		durationMin int
		from        string
		days        int
		prefer      string
		activity    string
	)
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Print ranked free slots as JSON",
		Long:  "Runs slot finding against the configured calendar without involving the model.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, cleanup, err := startApp(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			loc := a.cache.Location()
			start, err := parseSearchStart(from, time.Now(), loc)
			if err != nil {
				return err
			}
			if durationMin <= 0 {
				return fmt.Errorf("--duration must be positive")
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			caller, err := a.caller(ctx)
			if err != nil {
				return err
			}
			slots, err := a.engine.FindSlots(ctx, caller, availability.SlotRequest{
				Duration:    time.Duration(durationMin) * time.Minute,
				SearchStart: start,
				SearchEnd:   start.AddDate(0, 0, days),
				Preference:  availability.ParsePreference(prefer),
				Activity:    activity,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(slots)
		},
	}
	cmd.Flags().IntVarP(&durationMin, "duration", "d", 60, "slot length in minutes")
	cmd.Flags().StringVar(&from, "from", "", "search start, YYYY-MM-DD or RFC3339 (default: now)")
	cmd.Flags().IntVar(&days, "days", 7, "number of days to search")
	cmd.Flags().StringVar(&prefer, "prefer", "any", "morning | afternoon | evening | any")
	cmd.Flags().StringVar(&activity, "activity", "", "what the slot is for, used in pros and cons")
	return cmd
}

// parseSearchStart accepts an RFC3339 instant or a calendar date, which is
// read as midnight in loc. Empty means now.
func parseSearchStart(s string, now time.Time, loc *time.Location) (time.Time, error) {
	if s == "" {
		return now, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --from %q: want YYYY-MM-DD or RFC3339", s)
	}
	return t, nil
}
