package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Compare the stored point count with the corpus on disk",
	Long: `Show how many points the collection holds next to how many chunks the
current documents produce, plus the last recorded ingestion run.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, needs{})
	if err != nil {
		return err
	}
	defer a.Close()

	st, err := a.svc.Status(ctx)
	if err != nil {
		return err
	}
	run, hasRun, err := a.journal.LastRun(ctx, st.CollectionName, 0)
	if err != nil {
		return err
	}

	if statusJSON {
		out := map[string]any{"status": st}
		if hasRun {
			out["last_run"] = run
		}
		data, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "COLLECTION\t%s\n", st.CollectionName)
	fmt.Fprintf(w, "POINTS\t%d\n", st.PointsCount)
	fmt.Fprintf(w, "DOCUMENTS\t%d\n", st.Documents)
	fmt.Fprintf(w, "EXPECTED CHUNKS\t%d\n", st.ExpectedChunks)
	if hasRun {
		fmt.Fprintf(w, "LAST RUN\t#%d %s (%d processed, %d skipped)\n", run.ID, run.Status, run.BatchesProcessed, run.BatchesSkipped)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if st.PointsCount < st.ExpectedChunks {
		fmt.Printf("\n%d chunks missing; run `ragchat ingest` to resume.\n", st.ExpectedChunks-st.PointsCount)
	}
	return nil
}
