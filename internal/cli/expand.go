package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"daycal/internal/model"
	"daycal/internal/recurrence"
)

type expandOutput struct {
	Occurrences []model.Occurrence `json:"occurrences"`
	Truncated   bool               `json:"truncated"`
	Iterations  int                `json:"iterations"`
}

func newExpandCmd() *cobra.Command {
	var (
		eventFile     string
		start, end    string
		maxIterations int
	)

	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Expand one event from a JSON file over a window and print the occurrences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(eventFile)
			if err != nil {
				return err
			}
			var ev model.Event
			if err := json.Unmarshal(data, &ev); err != nil {
				return fmt.Errorf("decode %s: %w", eventFile, err)
			}
			if err := ev.Validate(); err != nil {
				return err
			}

			ws, err := parseWindowBound(start, false)
			if err != nil {
				return fmt.Errorf("--start: %w", err)
			}
			we, err := parseWindowBound(end, true)
			if err != nil {
				return fmt.Errorf("--end: %w", err)
			}

			res, err := recurrence.Expander{MaxIterations: maxIterations}.Expand(ev, ws, we)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(expandOutput{
				Occurrences: res.Occurrences,
				Truncated:   res.Truncated,
				Iterations:  res.Iterations,
			})
		},
	}

	cmd.Flags().StringVar(&eventFile, "event", "", "Path to an event JSON file")
	cmd.Flags().StringVar(&start, "start", "", "Window start (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Window end (RFC 3339 or YYYY-MM-DD, inclusive of the day)")
	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Iteration cap per event (0 = default)")
	_ = cmd.MarkFlagRequired("event")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
	return cmd
}

// parseWindowBound accepts RFC 3339 or a UTC calendar date.
func parseWindowBound(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	d, err := time.Parse(model.DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("want RFC 3339 or YYYY-MM-DD, got %q", v)
	}
	if endOfDay {
		return d.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
	}
	return d, nil
}
