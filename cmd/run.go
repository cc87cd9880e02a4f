package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/cwbudde/imagerecovery/internal/bench"
	"github.com/cwbudde/imagerecovery/internal/config"
	"github.com/cwbudde/imagerecovery/internal/objective"
	"github.com/cwbudde/imagerecovery/internal/opt"
	"github.com/cwbudde/imagerecovery/internal/store"
)

var (
	assetDir     string
	outPath      string
	iters        int
	popSize      int
	passes       int
	seed         int64
	runDataDir   string
	runStoreName string
	noEarlyStop  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Optimize a candidate image against the target",
	Long: `Runs the mayfly optimizer against the image recovery objective, scores the
recommendation and stores the record, trace, best.png and diff.png.
Flags override values from --config.`,
	RunE: runBenchmark,
}

func init() {
	runCmd.Flags().StringVar(&assetDir, "asset-dir", "assets", "Directory containing "+objective.AssetName)
	runCmd.Flags().StringVar(&outPath, "out", "", "Also write the recommended image to this path")
	runCmd.Flags().IntVar(&iters, "iters", 100, "Max iterations per pass")
	runCmd.Flags().IntVar(&popSize, "pop", 30, "Population size")
	runCmd.Flags().IntVar(&passes, "passes", 1, "Optimizer passes")
	runCmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	runCmd.Flags().StringVar(&runDataDir, "data-dir", "./data", "Base directory for run storage")
	runCmd.Flags().StringVar(&runStoreName, "store", store.BackendFS, "Store backend (fs, sqlite)")
	runCmd.Flags().BoolVar(&noEarlyStop, "no-early-stop", false, "Run every pass even when the loss stops improving")

	rootCmd.AddCommand(runCmd)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	record, err := executeRun(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if outPath != "" {
		img, err := objective.ToImage(record.Recommendation)
		if err != nil {
			return err
		}
		if err := writePNG(outPath, img); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", outPath)
	}
	return nil
}

// applyRunFlags overrides cfg with flags set on the command line.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("asset-dir") || configPath == "" {
		cfg.AssetDir = assetDir
	}
	if flags.Changed("iters") || configPath == "" {
		cfg.Optimizer.Iters = iters
	}
	if flags.Changed("pop") || configPath == "" {
		cfg.Optimizer.PopSize = popSize
	}
	if flags.Changed("passes") || configPath == "" {
		cfg.Passes = passes
	}
	if flags.Changed("seed") || configPath == "" {
		cfg.Seed = seed
	}
	if flags.Changed("data-dir") || configPath == "" {
		cfg.DataDir = runDataDir
	}
	if flags.Changed("store") || configPath == "" {
		cfg.Store = runStoreName
	}
	if noEarlyStop {
		cfg.Convergence = bench.DisabledConvergenceConfig()
	}
}

// executeRun performs one benchmark run and persists its outputs.
func executeRun(ctx context.Context, cfg config.Config, out io.Writer) (*store.Record, error) {
	im, err := loadObjective(cfg)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.Store, cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	runID := uuid.New().String()
	optimizer := opt.NewMayfly(cfg.Optimizer.Iters, cfg.Optimizer.PopSize, cfg.Seed)

	slog.Info("Starting run",
		"run_id", runID,
		"problem", cfg.Problem.String(),
		"iters", cfg.Optimizer.Iters,
		"pop", cfg.Optimizer.PopSize,
		"passes", cfg.Passes,
	)

	trace := func(p bench.PassResult) {
		entry := store.TraceEntry{
			Pass:        p.Pass,
			PassLoss:    p.PassLoss,
			BestLoss:    p.BestLoss,
			Evaluations: p.Evaluations,
			StalePasses: p.StalePasses,
			Timestamp:   time.Now(),
		}
		if err := st.AppendTrace(runID, entry); err != nil {
			slog.Warn("Failed to append trace", "run_id", runID, "pass", p.Pass, "error", err)
		}
	}

	result, err := bench.Run(ctx, im, optimizer, cfg.RunConfig(), trace)
	if err != nil {
		return nil, fmt.Errorf("run %s failed: %w", runID, err)
	}

	record := store.NewRecord(runID, result.Recommendation, result.Loss, result.InitialLoss,
		result.Passes, result.Evaluations, result.Converged, cfg.RecordConfig(optimizer.Name()))
	if err := record.Validate(); err != nil {
		return nil, err
	}
	if err := st.SaveRecord(runID, record); err != nil {
		return nil, fmt.Errorf("failed to save record: %w", err)
	}

	// Artifacts are secondary to the record
	if err := saveArtifacts(st, im, record); err != nil {
		slog.Warn("Failed to save artifacts", "run_id", runID, "error", err)
	}

	fmt.Fprintf(out, "Run %s: loss %.0f -> %.0f (%d passes, %d evaluations, %s)\n",
		runID, result.InitialLoss, result.Loss, result.Passes, result.Evaluations, result.Elapsed.Round(time.Millisecond))
	return record, nil
}

func saveArtifacts(st store.Store, im *objective.Image, record *store.Record) error {
	best, err := objective.ToImage(record.Recommendation)
	if err != nil {
		return err
	}
	data, err := encodePNG(best)
	if err != nil {
		return err
	}
	if err := st.SaveArtifact(record.RunID, store.ArtifactBest, data); err != nil {
		return err
	}

	diff, err := im.DiffImage(record.Recommendation)
	if err != nil {
		return err
	}
	data, err = encodePNG(diff)
	if err != nil {
		return err
	}
	return st.SaveArtifact(record.RunID, store.ArtifactDiff, data)
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

func writePNG(path string, img image.Image) error {
	data, err := encodePNG(img)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
