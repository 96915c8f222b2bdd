package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/agchavez/interlace/internal/export"
	"github.com/agchavez/interlace/internal/models"
)

var (
	exportFormat   string
	exportOutput   string
	exportStatus   string
	exportFilter   models.ClaimFilter
	reportNoPhotos bool
	reportWorkers  int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export claims to CSV, XLSX or PDF",
}

var exportClaimsCmd = &cobra.Command{
	Use:   "claims",
	Short: "Export the claim list as CSV or XLSX",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := export.ParseFormat(exportFormat)
		if err != nil {
			return err
		}
		out := exportOutput
		if out == "" {
			out = "reclamos." + format.Extension()
		}

		return withApp(func(ctx context.Context, a *app) error {
			ts, err := a.current(ctx)
			if err != nil {
				return err
			}
			filter := exportFilter
			filter.Status = models.ClaimStatus(strings.ToUpper(exportStatus))

			var rows int
			err = writeOutput(cmd, out, func(w io.Writer) error {
				rows, err = a.exports.Claims(ctx, ts, filter, format, w)
				return err
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d claims to %s\n", rows, out)
			return nil
		})
	},
}

var exportReportCmd = &cobra.Command{
	Use:   "report <id>",
	Short: "Render the PDF report of a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id <= 0 {
			return errors.Errorf("invalid claim id %q", args[0])
		}
		out := exportOutput
		if out == "" {
			out = fmt.Sprintf("reclamo-%d.pdf", id)
		}

		return withApp(func(ctx context.Context, a *app) error {
			ts, err := a.current(ctx)
			if err != nil {
				return err
			}
			opts := export.ReportOptions{Concurrency: reportWorkers, SkipPhotos: reportNoPhotos}
			if err := writeOutput(cmd, out, func(w io.Writer) error {
				return a.exports.Report(ctx, ts, id, w, opts)
			}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Report for claim %d written to %s\n", id, out)
			return nil
		})
	},
}

func init() {
	exportCmd.PersistentFlags().StringVarP(&exportOutput, "output", "o", "", "destination file, - for stdout")

	exportClaimsCmd.Flags().StringVarP(&exportFormat, "format", "f", "csv", "csv or xlsx")
	exportClaimsCmd.Flags().StringVar(&exportStatus, "status", "", "only claims in this status")
	exportClaimsCmd.Flags().StringVar(&exportFilter.Search, "search", "", "free text search")
	exportClaimsCmd.Flags().StringVar(&exportFilter.DistributorCenter, "center", "", "distributor center")
	exportClaimsCmd.Flags().IntVar(&exportFilter.Tracker, "tracker", 0, "only claims for this tracker")
	exportClaimsCmd.Flags().IntVar(&exportFilter.Limit, "limit", 0, "maximum number of claims, 0 for all")

	exportReportCmd.Flags().BoolVar(&reportNoPhotos, "no-photos", false, "leave photos out of the report")
	exportReportCmd.Flags().IntVar(&reportWorkers, "workers", 4, "parallel photo downloads")

	exportCmd.AddCommand(exportClaimsCmd, exportReportCmd)
	rootCmd.AddCommand(exportCmd)
}

// writeOutput runs write against path, removing a partial file on failure
func writeOutput(cmd *cobra.Command, path string, write func(w io.Writer) error) error {
	if path == "-" {
		return write(cmd.OutOrStdout())
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create %s", path)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return errors.Wrapf(f.Close(), "close %s", path)
}
