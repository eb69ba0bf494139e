package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/forge-platform/firebridge/internal/core/ports"
	"github.com/spf13/cobra"
)

var analyticsCmd = &cobra.Command{
	Use:   "analytics",
	Short: "Inspect recorded analytics",
	Long:  `Show the analytics events and user properties guests have logged.`,
}

var (
	eventsName  string
	eventsLimit int
	eventsSince time.Duration
	eventsJSON  bool
)

var analyticsEventsCmd = &cobra.Command{
	Use:   "events",
	Short: "List logged events, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStorageOnly(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		filter := ports.EventFilter{Name: eventsName, Limit: eventsLimit}
		if eventsSince > 0 {
			filter.Since = time.Now().Add(-eventsSince)
		}
		events, err := st.events.ListEvents(ctx, filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if eventsJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(events)
		}
		writeEvents(out, events)
		return nil
	},
}

var analyticsPropertiesCmd = &cobra.Command{
	Use:   "properties",
	Short: "List user properties",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStorageOnly(ctx, cfg, logger, false)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		props, err := st.events.UserProperties(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(props) == 0 {
			fmt.Fprintln(out, mutedStyle.Render("No user properties"))
			return nil
		}
		fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("User properties (%d)", len(props))))
		for _, p := range props {
			fmt.Fprintf(out, "  %s = %s  %s\n", headerStyle.Render(p.Name), p.Value,
				mutedStyle.Render(p.UpdatedAt.Format(time.RFC3339)))
		}
		return nil
	},
}

func init() {
	analyticsEventsCmd.Flags().StringVar(&eventsName, "name", "", "only events with this name")
	analyticsEventsCmd.Flags().IntVarP(&eventsLimit, "limit", "n", 50, "maximum events to show")
	analyticsEventsCmd.Flags().DurationVar(&eventsSince, "since", 0, "only events newer than this (e.g. 24h)")
	analyticsEventsCmd.Flags().BoolVar(&eventsJSON, "json", false, "output as JSON")

	analyticsCmd.AddCommand(analyticsEventsCmd)
	analyticsCmd.AddCommand(analyticsPropertiesCmd)
}

func writeEvents(w io.Writer, events []*domain.AnalyticsEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No events"))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Events (%d)", len(events))))
	for _, e := range events {
		line := fmt.Sprintf("  %s  %s", e.Timestamp.Format("2006-01-02 15:04:05"), headerStyle.Render(e.Name))
		if params := formatParams(e.Params); params != "" {
			line += " " + params
		}
		if e.UserID != "" {
			line += "  " + mutedStyle.Render("user "+e.UserID)
		}
		fmt.Fprintln(w, line)
	}
}

// formatParams renders params as {k=v, ...} with sorted keys.
func formatParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, params[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
