package main

import (
	"context"
	"fmt"
	"image"
	"io"
	"os"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/cwbudde/imagerecovery/internal/objective"
)

var (
	scoreAssetDir string
	scoreResize   bool
	scoreJobs     int
)

var scoreCmd = &cobra.Command{
	Use:   "score <image>...",
	Short: "Score candidate images against the target",
	Long: `Loads each candidate image and prints its L1 loss against the target.
Candidates must be 256x256 unless --resize is given. Files are scored concurrently.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreAssetDir, "asset-dir", "assets", "Directory containing "+objective.AssetName)
	scoreCmd.Flags().BoolVar(&scoreResize, "resize", false, "Resize candidates to 256x256 before scoring")
	scoreCmd.Flags().IntVar(&scoreJobs, "jobs", runtime.NumCPU(), "Maximum files scored in parallel")

	rootCmd.AddCommand(scoreCmd)
}

// scoreResult is the loss of one candidate file
type scoreResult struct {
	Path string
	Loss float64
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("asset-dir") || configPath == "" {
		cfg.AssetDir = scoreAssetDir
	}

	im, err := loadObjective(cfg)
	if err != nil {
		return err
	}

	results, err := scoreFiles(cmd.Context(), im, args, scoreResize, scoreJobs)
	if err != nil {
		return err
	}
	return printScores(cmd.OutOrStdout(), results)
}

// scoreFiles scores paths concurrently. Results keep the order of paths.
// The first failure cancels the remaining work.
func scoreFiles(ctx context.Context, im *objective.Image, paths []string, resize bool, jobs int) ([]scoreResult, error) {
	results := make([]scoreResult, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if jobs > 0 {
		g.SetLimit(jobs)
	}

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			loss, err := scoreFile(im, path, resize)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = scoreResult{Path: path, Loss: loss}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func scoreFile(im *objective.Image, path string, resize bool) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return 0, fmt.Errorf("failed to decode image: %w", err)
	}

	shape := im.Shape()
	if resize {
		img = objective.Resize(img, shape.Width, shape.Height)
	}

	x, err := objective.FromImage(img)
	if err != nil {
		return 0, err
	}
	return im.EvaluationFunction(x)
}

func printScores(out io.Writer, results []scoreResult) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FILE\tLOSS\tMEAN ABS ERROR")
	fmt.Fprintln(w, "----\t----\t--------------")

	size := float64(objective.DomainShape.Size())
	for _, r := range results {
		fmt.Fprintf(w, "%s\t%.0f\t%.3f\n", r.Path, r.Loss, r.Loss/size)
	}
	return w.Flush()
}
