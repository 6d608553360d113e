package main

import (
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/cwbudde/chargeanneal/internal/config"
	"github.com/cwbudde/chargeanneal/internal/store"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	solveConfigPath string
	solveInitFrom   string
	solveXLSX       bool
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Find an equilibrium configuration",
	Long: `Fits the potential, draws starting positions, relaxes them with a local
minimizer and optionally refines the result by simulated annealing. The
solution is saved under --data-dir with a diagnostics trace.`,
	Example: `  chargeanneal solve --field trap.csv -n 40 --trials 50 --temperature 0.2
  chargeanneal solve --wire channel.csv --wire-length 40e-6 -n 120 --init mayfly
  chargeanneal solve --config run.yaml --xlsx`,
	RunE: runSolveCmd,
}

func init() {
	solveCmd.Flags().StringVar(&solveConfigPath, "config", "", "YAML run configuration; flags override its values")
	solveCmd.Flags().StringVar(&solveInitFrom, "init-from", "", "Start from the positions in an exported xlsx solution")
	solveCmd.Flags().BoolVar(&solveXLSX, "xlsx", false, "Also export the solution as solution.xlsx")
	addFieldFlags(solveCmd.Flags())
	addRunFlags(solveCmd.Flags())
	rootCmd.AddCommand(solveCmd)
}

func runSolveCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadRunConfig(cmd.Flags(), solveConfigPath)
	if err != nil {
		return err
	}
	st, err := store.NewFSStore(dataDir)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	c, err := solve(cfg, st, solveOptions{initFrom: solveInitFrom, xlsx: solveXLSX})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (energy %.9g eV, %d electrons, density %.3e m^-2)\n",
		c.JobID, c.Energy, c.Charges(), c.Summary.Density)
	return nil
}

type solveOptions struct {
	jobID    string
	initFrom string
	xlsx     bool
}

// solve runs a full solve and saves the result.
func solve(cfg config.Run, st *store.FSStore, o solveOptions) (*store.Checkpoint, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	jobID := o.jobID
	if jobID == "" {
		jobID = uuid.New().String()
	}

	slog.Info("Starting solve",
		"job_id", jobID,
		"field", cfg.Field.Kind,
		"electrons", cfg.Electrons,
		"method", cfg.Minimizer.Method,
		"trials", cfg.Anneal.Trials,
	)

	p, err := buildProblem(cfg)
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	var x0 []float64
	if o.initFrom != "" {
		x0, err = positionsFromWorkbook(o.initFrom, cfg, p)
	} else {
		x0, err = initialPositions(cfg, p, rng)
	}
	if err != nil {
		return nil, err
	}

	tw, err := store.NewTraceWriter(st.BaseDir(), jobID, false)
	if err != nil {
		return nil, err
	}
	defer tw.Close()

	s, err := newSession(cfg, p, tw)
	if err != nil {
		return nil, err
	}

	res, err := s.minimize(x0)
	if err != nil {
		return nil, err
	}
	initial := res.F

	trials := 0
	if cfg.Anneal.Trials > 0 {
		if res.Converged() {
			if res, err = s.anneal(res, rng, 0); err != nil {
				return nil, err
			}
			trials = cfg.Anneal.Trials
		} else {
			slog.Warn("Skipping annealing, starting solution did not converge")
		}
	}

	c, err := s.finish(jobID, res, initial)
	if err != nil {
		return nil, err
	}
	c.Trials = trials

	if err := st.SaveCheckpoint(jobID, c); err != nil {
		return nil, err
	}
	if err := tw.Flush(); err != nil {
		return nil, err
	}

	if o.xlsx {
		path, err := st.ExportWorkbook(jobID)
		if err != nil {
			return nil, err
		}
		slog.Info("Workbook written", "path", path)
	}
	return c, nil
}
