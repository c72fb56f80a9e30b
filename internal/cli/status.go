package cli

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/zhuyongyong/crosswalk/internal/marker"
	"github.com/zhuyongyong/crosswalk/internal/runtime"
)

var statusJSON bool

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print status as JSON")
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	Root      string         `json:"root"`
	Finding   string         `json:"finding"`
	Installed string         `json:"installed,omitempty"`
	Required  string         `json:"required"`
	Archive   string         `json:"archive,omitempty"`
	Error     string         `json:"error,omitempty"`
	Marker    *marker.Marker `json:"marker,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed runtime without acquiring it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadSettings()
		if err != nil {
			return err
		}
		layout := layoutFor(s)
		insp := runtime.NewDirProbe(layout).Inspect(cmd.Context())

		report := statusReport{
			Root:      layout.Root,
			Finding:   insp.Finding.String(),
			Installed: insp.Installed,
			Required:  insp.Required,
			Archive:   insp.Archive,
		}
		if insp.Err != nil {
			report.Error = insp.Err.Error()
		}
		if report.Marker, err = marker.Load(layout.MarkerDir); err != nil {
			return err
		}

		if statusJSON {
			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling status: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Runtime:\t%s\n", report.Root)
		fmt.Fprintf(w, "Status:\t%s\n", report.Finding)
		if report.Installed != "" {
			fmt.Fprintf(w, "Installed:\t%s\n", report.Installed)
		}
		fmt.Fprintf(w, "Required:\t%s\n", report.Required)
		if report.Archive != "" {
			fmt.Fprintf(w, "Bundled archive:\t%s\n", report.Archive)
		}
		if report.Error != "" {
			fmt.Fprintf(w, "Error:\t%s\n", report.Error)
		}
		if mk := report.Marker; mk != nil {
			fmt.Fprintf(w, "Marker:\t%s (%s, %s)\n", mk.Version, mk.Source, humanize.Time(mk.WrittenAt))
		}
		return w.Flush()
	},
}
