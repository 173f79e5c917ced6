package cmd

import (
	"fmt"
	"io"
	"sort"

	"mu-scheduler/internal/database"

	"github.com/spf13/cobra"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report <artifact>",
		Short: "Print the summary stored in a spool artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			artifact, err := database.ReadSpoolArtifact(args[0])
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), artifact)
			return nil
		},
	}
}

func printReport(out io.Writer, artifact *database.SpoolArtifact) {
	fmt.Fprintf(out, "run %d %q (config %s)\n", artifact.RunID, artifact.Name, artifact.ConfigChecksum)
	fmt.Fprintf(out, "cycles: %d\n", len(artifact.Cycles))

	m := artifact.Metrics
	if m == nil {
		return
	}
	fmt.Fprintf(out, "airtime: %s utilization: %.3f fairness: %.3f truncations: %d\n",
		m.Airtime, m.MeanUtilization, m.Fairness, m.Truncations)

	formats := make([]string, 0, len(m.Formats))
	for f := range m.Formats {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	for _, f := range formats {
		fmt.Fprintf(out, "  %-8s %d\n", f, m.Formats[f])
	}
	for _, st := range m.Stations {
		fmt.Fprintf(out, "  aid %-4d dl=%d ul=%d grants=%d truncated=%d\n",
			st.AID, st.DownlinkBytes, st.UplinkBytes, st.Grants, st.Truncated)
	}
}
