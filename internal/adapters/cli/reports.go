package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/forge-platform/firebridge/internal/adapters/cloud"
	"github.com/forge-platform/firebridge/internal/core/domain"
	"github.com/spf13/cobra"
)

var errNoBucket = errors.New("crash report upload is not configured (set crash.bucket)")

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage crash reports",
	Long:  `List, upload and prune the crash reports recorded by guests.`,
}

var (
	reportsLimit  int
	reportsRemote bool
	reportsDate   string
)

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List crash reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStorageOnly(ctx, cfg, logger, reportsRemote)
		if err != nil {
			return err
		}
		defer st.Close(ctx)

		out := cmd.OutOrStdout()
		if reportsRemote {
			if st.uploader == nil {
				return errNoBucket
			}
			objects, err := st.uploader.List(ctx, reportsDate)
			if err != nil {
				return err
			}
			writeRemoteReports(out, objects)
			return nil
		}

		reports, err := st.crash.Reports(ctx, reportsLimit)
		if err != nil {
			return err
		}
		writeReports(out, reports)
		return nil
	},
}

var reportsSendCmd = &cobra.Command{
	Use:   "send",
	Short: "Upload unsent crash reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStorageOnly(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer st.Close(ctx)
		if st.uploader == nil {
			return errNoBucket
		}

		sent, err := st.crash.SendUnsentReports(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d reports sent\n", mark(err == nil), sent)
		return err
	},
}

var reportsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete uploaded reports past the retention period",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStorageOnly(ctx, cfg, logger, true)
		if err != nil {
			return err
		}
		defer st.Close(ctx)
		if st.uploader == nil {
			return errNoBucket
		}

		deleted, err := st.uploader.Cleanup(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %d reports older than %d days deleted\n",
			mark(true), deleted, cfg.Crash.RetentionDays)
		return nil
	},
}

func init() {
	reportsListCmd.Flags().IntVarP(&reportsLimit, "limit", "n", 20, "maximum reports to show")
	reportsListCmd.Flags().BoolVar(&reportsRemote, "remote", false, "list the reports in the bucket instead")
	reportsListCmd.Flags().StringVar(&reportsDate, "date", "", "bucket date prefix (YYYY/MM/DD) for --remote")

	reportsCmd.AddCommand(reportsListCmd)
	reportsCmd.AddCommand(reportsSendCmd)
	reportsCmd.AddCommand(reportsPruneCmd)
}

func writeReports(w io.Writer, reports []*domain.CrashReport) {
	if len(reports) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No crash reports"))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Crash reports (%d)", len(reports))))
	for _, r := range reports {
		status := failStyle.Render("unsent")
		if r.Sent() {
			status = okStyle.Render("sent")
		}
		fmt.Fprintf(w, "  %s  %s  %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"), status, r.Message)
		if r.UserID != "" {
			fmt.Fprintf(w, "      %s\n", mutedStyle.Render("user "+r.UserID))
		}
		if len(r.Breadcrumbs) > 0 {
			fmt.Fprintf(w, "      %s\n", mutedStyle.Render(strings.Join(r.Breadcrumbs, " > ")))
		}
	}
}

func writeRemoteReports(w io.Writer, objects []cloud.ReportObject) {
	if len(objects) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No reports in bucket"))
		return
	}
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Uploaded reports (%d)", len(objects))))
	for _, o := range objects {
		fmt.Fprintf(w, "  %s  %6d B  %s\n", o.CreatedAt.Format("2006-01-02 15:04:05"), o.Size, o.Name)
	}
}
