package main

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/chargeanneal/internal/config"
	"github.com/cwbudde/chargeanneal/internal/store"
	"github.com/spf13/cobra"
)

var annealXLSX bool

var annealCmd = &cobra.Command{
	Use:   "anneal <job-id>",
	Short: "Continue annealing a saved solution",
	Long: `Loads a saved solution, refits its field and runs more annealing trials.
The checkpoint is only replaced when a lower converged energy is found.
Run settings come from the checkpoint; flags override them.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnnealCmd,
}

func init() {
	annealCmd.Flags().BoolVar(&annealXLSX, "xlsx", false, "Refresh solution.xlsx afterwards")
	addRunFlags(annealCmd.Flags())
	rootCmd.AddCommand(annealCmd)
}

func runAnnealCmd(cmd *cobra.Command, args []string) error {
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}
	c, err := st.LoadCheckpoint(args[0])
	if err != nil {
		return err
	}

	cfg := c.Config
	if err := applyFlags(cmd.Flags(), &cfg); err != nil {
		return err
	}

	updated, improved, err := continueAnnealing(c, st, cfg)
	if err != nil {
		return err
	}

	if annealXLSX {
		if _, err := st.ExportWorkbook(updated.JobID); err != nil {
			return err
		}
	}

	if improved {
		fmt.Fprintf(cmd.OutOrStdout(), "Improved %s: %.9g -> %.9g eV\n", c.JobID, c.Energy, updated.Energy)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "No lower state found for %s (energy %.9g eV)\n", c.JobID, c.Energy)
	}
	return nil
}

// continueAnnealing relaxes the saved positions once to get a converged
// start under the current settings, then runs more trials from it. The
// checkpoint is rewritten whenever the trial count moves; the bool reports
// whether the energy went down.
func continueAnnealing(c *store.Checkpoint, st *store.FSStore, cfg config.Run) (*store.Checkpoint, bool, error) {
	trials := cfg.Anneal.Trials
	if trials <= 0 {
		return nil, false, fmt.Errorf("--trials must be positive to continue annealing")
	}
	if err := cfg.Validate(); err != nil {
		return nil, false, err
	}
	if err := c.IsCompatible(cfg); err != nil {
		return nil, false, err
	}

	p, err := buildProblem(cfg)
	if err != nil {
		return nil, false, err
	}

	tw, err := store.NewTraceWriter(st.BaseDir(), c.JobID, true)
	if err != nil {
		return nil, false, err
	}
	defer tw.Close()

	s, err := newSession(cfg, p, tw)
	if err != nil {
		return nil, false, err
	}

	start, err := s.minimize(c.Positions)
	if err != nil {
		return nil, false, err
	}
	if !start.Converged() {
		return nil, false, fmt.Errorf("saved solution %s does not relax to a converged state: %s", c.JobID, start.Message)
	}

	slog.Info("Continuing annealing",
		"job_id", c.JobID,
		"saved_energy", c.Energy,
		"start_energy", start.F,
		"previous_trials", c.Trials,
		"trials", trials,
	)

	// Offset the seed so a resumed run does not replay earlier kicks.
	rng := rand.New(rand.NewSource(cfg.Seed + int64(c.Trials)))
	best, err := s.anneal(start, rng, c.Trials)
	if err != nil {
		return nil, false, err
	}

	improved := best.F < c.Energy
	saved := *c
	updated := &saved
	if improved {
		updated, err = s.finish(c.JobID, best, c.InitialEnergy)
		if err != nil {
			return nil, false, err
		}
	}
	updated.Trials = c.Trials + trials
	updated.Config.Anneal = cfg.Anneal

	if err := st.SaveCheckpoint(c.JobID, updated); err != nil {
		return nil, false, err
	}
	if err := tw.Flush(); err != nil {
		return nil, false, err
	}
	return updated, improved, nil
}
