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

	"github.com/cwbudde/chargeanneal/internal/store"
	"github.com/spf13/cobra"
)

var (
	keepLast      int
	olderThanDays int
	forceClean    bool
	showJSON      bool
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Manage saved solutions",
	Long: `Manage saved solutions: list, inspect, export and clean them.
A saved solution can be refined further with the anneal command.`,
}

var listCheckpointsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all saved solutions",
	Long:  `Display all saved solutions with job ID, timestamp, field, electron count, energy, density, annealing trials and size on disk.`,
	RunE:  runListCheckpoints,
}

var showCheckpointCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one saved solution",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowCheckpoint,
}

var exportCheckpointCmd = &cobra.Command{
	Use:   "export <job-id>",
	Short: "Write a saved solution to an xlsx workbook",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportCheckpoint,
}

var cleanCheckpointsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean old solutions",
	Long: `Delete old solutions based on retention policy.
You can keep only the newest N solutions or delete solutions older than N days.`,
	RunE: runCleanCheckpoints,
}

func init() {
	rootCmd.AddCommand(checkpointsCmd)

	checkpointsCmd.AddCommand(listCheckpointsCmd)
	checkpointsCmd.AddCommand(showCheckpointCmd)
	checkpointsCmd.AddCommand(exportCheckpointCmd)
	checkpointsCmd.AddCommand(cleanCheckpointsCmd)

	showCheckpointCmd.Flags().BoolVar(&showJSON, "json", false, "Print the full checkpoint as JSON")

	cleanCheckpointsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N solutions (0 = keep all)")
	cleanCheckpointsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete solutions older than N days (0 = no age limit)")
	cleanCheckpointsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

func runListCheckpoints(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No checkpoints found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "JOB ID\tTIMESTAMP\tFIELD\tN\tENERGY (eV)\tDENSITY (m^-2)\tTRIALS\tSIZE")
	fmt.Fprintln(w, "------\t---------\t-----\t-\t-----------\t--------------\t------\t----")

	for _, info := range infos {
		size, err := getDirSize(checkpointStore.JobDir(info.JobID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		energy := fmt.Sprintf("%.9g", info.Energy)
		if !info.Converged {
			energy += "*"
		}

		fmt.Fprintf(w, "%s\t%s\t%s:%s\t%d\t%s\t%.3e\t%d\t%s\n",
			shortID(info.JobID),
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.FieldKind,
			filepath.Base(info.FieldPath),
			info.Charges,
			energy,
			info.Density,
			info.Trials,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Fprintf(out, "\nTotal checkpoints: %d (* = not converged)\n", len(infos))
	return nil
}

func runShowCheckpoint(cmd *cobra.Command, args []string) error {
	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	c, err := checkpointStore.LoadCheckpoint(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if showJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}
	return printCheckpoint(out, c, checkpointStore.BaseDir())
}

func printCheckpoint(out io.Writer, c *store.Checkpoint, baseDir string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Job ID:\t%s\n", c.JobID)
	fmt.Fprintf(w, "Saved:\t%s\n", c.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Field:\t%s %s\n", c.Config.Field.Kind, c.Config.Field.Path)
	fmt.Fprintf(w, "Electrons:\t%d\n", c.Charges())
	fmt.Fprintf(w, "Energy:\t%.12g eV\n", c.Energy)
	fmt.Fprintf(w, "  field part:\t%.12g eV\n", c.FieldEnergy)
	fmt.Fprintf(w, "  pair part:\t%.12g eV\n", c.PairEnergy)
	fmt.Fprintf(w, "Initial energy:\t%.12g eV\n", c.InitialEnergy)
	fmt.Fprintf(w, "Converged:\t%v\n", c.Converged)
	fmt.Fprintf(w, "Minimizer:\t%s, %d iterations\n", c.Config.Minimizer.Method, c.Iterations)
	fmt.Fprintf(w, "Annealing trials:\t%d at %g K\n", c.Trials, c.Config.Anneal.Temperature)
	fmt.Fprintf(w, "Density:\t%.4e m^-2\n", c.Summary.Density)
	fmt.Fprintf(w, "Mean spacing:\t%.4e m\n", c.Summary.MeanSpacing)
	if c.Summary.Trapped != nil {
		fmt.Fprintf(w, "Trapped:\t%d\n", *c.Summary.Trapped)
	}

	if entries, err := store.ReadTrace(baseDir, c.JobID); err == nil {
		fmt.Fprintf(w, "Trace entries:\t%d\n", len(entries))
	}
	return w.Flush()
}

func runExportCheckpoint(cmd *cobra.Command, args []string) error {
	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	path, err := checkpointStore.ExportWorkbook(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), path)
	return nil
}

func runCleanCheckpoints(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return fmt.Errorf("must specify either --keep-last or --older-than")
	}
	out := cmd.OutOrStdout()

	checkpointStore, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	infos, err := checkpointStore.ListCheckpoints()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}

	if len(infos) == 0 {
		fmt.Fprintln(out, "No checkpoints to clean.")
		return nil
	}

	toDelete := selectCheckpointsForDeletion(infos, keepLast, olderThanDays)

	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No checkpoints match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d checkpoint(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%.9g eV, %s)\n",
			shortID(info.JobID),
			info.Energy,
			info.Timestamp.Format("2006-01-02 15:04:05"),
		)
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Fscanln(cmd.InOrStdin(), &response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := checkpointStore.DeleteCheckpoint(info.JobID); err != nil {
			slog.Error("Failed to delete checkpoint", "job_id", info.JobID, "error", err)
			failed++
		} else {
			slog.Info("Deleted checkpoint", "job_id", info.JobID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d checkpoint(s), %d failed.\n", deleted, failed)
	return nil
}

// selectCheckpointsForDeletion applies the retention policy: everything older
// than olderThanDays, plus everything beyond the newest keepLast.
func selectCheckpointsForDeletion(infos []store.CheckpointInfo, keepLast int, olderThanDays int) []store.CheckpointInfo {
	var toDelete []store.CheckpointInfo
	selected := make(map[string]bool)

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		for _, info := range infos {
			if info.Timestamp.Before(cutoff) {
				toDelete = append(toDelete, info)
				selected[info.JobID] = true
			}
		}
	}

	if keepLast > 0 && len(infos) > keepLast {
		sorted := make([]store.CheckpointInfo, len(infos))
		copy(sorted, infos)
		sort.Slice(sorted, func(i, j int) bool {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		})

		for _, info := range sorted[:len(sorted)-keepLast] {
			if !selected[info.JobID] {
				toDelete = append(toDelete, info)
				selected[info.JobID] = true
			}
		}
	}

	return toDelete
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
