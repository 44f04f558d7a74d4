package cli

import (
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the index can serve questions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		p, err := requirePipeline(cmd)
		if err != nil {
			return err
		}
		st := p.IndexStatus(ctxOf(cmd))
		cmd.Printf("Index:  %s\n", st.Location)
		if !st.Available {
			cmd.Printf("Status: unavailable (%s)\n", st.Error)
			return nil
		}
		cmd.Printf("Status: ready\n")
		cmd.Printf("Chunks: %d\n", st.Chunks)
		cmd.Printf("Metric: %s\n", st.Metric)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	// Does not need configuration.
	PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("pdfrag version %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(versionCmd)
}
