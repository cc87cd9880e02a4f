package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cwbudde/imagerecovery/internal/store"
)

const (
	formatJSON = "json"
	formatYAML = "yaml"
)

var (
	runsDataDir   string
	runsStoreName string
	outputFormat  string
	showTrace     bool
	exportOut     string
	keepLast      int
	olderThanDays int
	forceClean    bool
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and manage stored runs",
	Long:  `List, show, export and delete benchmark run records.`,
}

var listRunsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored runs",
	Long:  `Display all runs with run ID, timestamp, passes, losses and storage size.`,
	RunE:  runListRuns,
}

var showRunCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show a run record",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowRun,
}

var exportRunCmd = &cobra.Command{
	Use:   "export <run-id> <artifact>",
	Short: "Write a stored artifact (best.png, diff.png) to a file",
	Args:  cobra.ExactArgs(2),
	RunE:  runExportArtifact,
}

var compareRunsCmd = &cobra.Command{
	Use:   "compare <run-id> <run-id>",
	Short: "Compare the losses of two runs",
	Long: `Compare the final losses of two runs. Runs are only comparable when they
scored against the same target: same problem type, index and asset directory.`,
	Args: cobra.ExactArgs(2),
	RunE: runCompareRuns,
}

var deleteRunCmd = &cobra.Command{
	Use:   "delete <run-id>...",
	Short: "Delete runs",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runDeleteRuns,
}

var cleanRunsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old runs",
	Long: `Delete old runs based on retention policy.
You can keep only the most recent N runs or delete runs older than N days.`,
	RunE: runCleanRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.AddCommand(listRunsCmd)
	runsCmd.AddCommand(showRunCmd)
	runsCmd.AddCommand(exportRunCmd)
	runsCmd.AddCommand(compareRunsCmd)
	runsCmd.AddCommand(deleteRunCmd)
	runsCmd.AddCommand(cleanRunsCmd)

	runsCmd.PersistentFlags().StringVar(&runsDataDir, "data-dir", "./data", "Base directory for run storage")
	runsCmd.PersistentFlags().StringVar(&runsStoreName, "store", store.BackendFS, "Store backend (fs, sqlite)")

	showRunCmd.Flags().StringVar(&outputFormat, "format", formatJSON, "Output format [json, yaml]")
	showRunCmd.Flags().BoolVar(&showTrace, "trace", false, "Include the per-pass trace")

	exportRunCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output path (default: <run-id>-<artifact>)")

	cleanRunsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the last N runs (0 = keep all)")
	cleanRunsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete runs older than N days (0 = no age limit)")
	cleanRunsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func openRunStore() (store.Store, error) {
	st, err := store.Open(runsStoreName, runsDataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	return st, nil
}

func runListRuns(cmd *cobra.Command, args []string) error {
	st, err := openRunStore()
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	return printRuns(stdout(cmd), st, infos)
}

func printRuns(out io.Writer, st store.Store, infos []store.RecordInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tTIMESTAMP\tPASSES\tINITIAL LOSS\tLOSS\tSIZE")
	fmt.Fprintln(w, "------\t---------\t------\t------------\t----\t----")

	fs, isFS := st.(*store.FSStore)
	for _, info := range infos {
		sizeStr := "-"
		if isFS {
			if size, err := getDirSize(fs.RunDir(info.RunID)); err == nil {
				sizeStr = formatBytes(size)
			}
		}

		fmt.Fprintf(w, "%s\t%s\t%d\t%.0f\t%.0f\t%s\n",
			shortID(info.RunID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Passes,
			info.InitialLoss,
			info.Loss,
			sizeStr,
		)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal runs: %d\n", len(infos))
	return nil
}

// runView is what `runs show` prints.
type runView struct {
	store.RecordInfo `yaml:",inline"`
	Converged        bool               `json:"converged" yaml:"converged"`
	Config           store.RunConfig    `json:"config" yaml:"config"`
	Trace            []store.TraceEntry `json:"trace,omitempty" yaml:"trace,omitempty"`
}

func runShowRun(cmd *cobra.Command, args []string) error {
	st, err := openRunStore()
	if err != nil {
		return err
	}
	defer st.Close()

	record, err := st.LoadRecord(args[0])
	if err != nil {
		return err
	}

	view := runView{RecordInfo: record.ToInfo(), Converged: record.Converged, Config: record.Config}
	if showTrace {
		trace, err := st.LoadTrace(record.RunID)
		if err != nil {
			slog.Warn("Run has no trace", "run_id", record.RunID, "error", err)
		}
		view.Trace = trace
	}

	return encode(stdout(cmd), outputFormat, view)
}

func encode(out io.Writer, format string, v any) error {
	switch format {
	case formatYAML:
		return yaml.NewEncoder(out).Encode(v)
	case formatJSON:
		e := json.NewEncoder(out)
		e.SetIndent("", "  ")
		return e.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func runExportArtifact(cmd *cobra.Command, args []string) error {
	runID, name := args[0], args[1]

	st, err := openRunStore()
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := st.LoadArtifact(runID, name)
	if err != nil {
		return fmt.Errorf("failed to load %s of run %s: %w", name, runID, err)
	}

	path := exportOut
	if path == "" {
		path = runID + "-" + name
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Fprintf(stdout(cmd), "Wrote %s (%s)\n", path, formatBytes(int64(len(data))))
	return nil
}

func runCompareRuns(cmd *cobra.Command, args []string) error {
	st, err := openRunStore()
	if err != nil {
		return err
	}
	defer st.Close()

	a, err := st.LoadRecord(args[0])
	if err != nil {
		return err
	}
	b, err := st.LoadRecord(args[1])
	if err != nil {
		return err
	}

	if err := a.IsComparable(b.Config); err != nil {
		return fmt.Errorf("runs %s and %s are not comparable: %w", shortID(a.RunID), shortID(b.RunID), err)
	}

	out := stdout(cmd)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN ID\tOPTIMIZER\tITERS\tPOP\tPASSES\tEVALUATIONS\tLOSS")
	fmt.Fprintln(w, "------\t---------\t-----\t---\t------\t-----------\t----")
	for _, r := range []*store.Record{a, b} {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%.0f\n",
			shortID(r.RunID), r.Config.Optimizer, r.Config.Iters, r.Config.PopSize,
			r.Passes, r.Evaluations, r.Loss)
	}
	w.Flush()

	switch {
	case a.Loss == b.Loss:
		fmt.Fprintln(out, "\nBoth runs reached the same loss.")
	case a.Loss < b.Loss:
		fmt.Fprintf(out, "\n%s is better by %.0f\n", shortID(a.RunID), b.Loss-a.Loss)
	default:
		fmt.Fprintf(out, "\n%s is better by %.0f\n", shortID(b.RunID), a.Loss-b.Loss)
	}
	return nil
}

func runDeleteRuns(cmd *cobra.Command, args []string) error {
	st, err := openRunStore()
	if err != nil {
		return err
	}
	defer st.Close()

	for _, runID := range args {
		if err := st.DeleteRecord(runID); err != nil {
			return fmt.Errorf("failed to delete run %s: %w", runID, err)
		}
		slog.Info("Deleted run", "run_id", runID)
	}

	fmt.Fprintf(stdout(cmd), "Deleted %d run(s).\n", len(args))
	return nil
}

func runCleanRuns(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}

	st, err := openRunStore()
	if err != nil {
		return err
	}
	defer st.Close()

	infos, err := st.ListRecords()
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	out := stdout(cmd)
	if len(infos) == 0 {
		fmt.Fprintln(out, "No runs to clean.")
		return nil
	}

	toDelete := selectRunsForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No runs match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d run(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (loss %.0f, %s)\n",
			shortID(info.RunID),
			info.Loss,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := st.DeleteRecord(info.RunID); err != nil {
			slog.Error("Failed to delete run", "run_id", info.RunID, "error", err)
			failed++
		} else {
			slog.Info("Deleted run", "run_id", info.RunID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d run(s), %d failed.\n", deleted, failed)
	return nil
}

// selectRunsForDeletion returns runs older than olderThanDays plus the oldest
// runs beyond the newest keepLast. Zero disables a rule.
func selectRunsForDeletion(infos []store.RecordInfo, keepLast, olderThanDays int, now time.Time) []store.RecordInfo {
	var toDelete []store.RecordInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.RecordInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.RunID] {
				toDelete = append(toDelete, info)
				selected[info.RunID] = true
			}
		}
	}

	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// stdout tolerates a nil command so handlers can be called directly.
func stdout(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
