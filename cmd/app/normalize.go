package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"satnorm/internal/config"
	"satnorm/internal/domain"
	"satnorm/internal/server"
	"satnorm/internal/service"
	"satnorm/pkg/logger"
)

func newNormalizeCmd(v *viper.Viper) *cobra.Command {
	var (
		zipPath string
		target  float64
	)

	cmd := &cobra.Command{
		Use:   "normalize",
		Short: "Normalize every image in a ZIP archive and write the results",
		PreRun: func(cmd *cobra.Command, args []string) {
			bindFlags(v, cmd.Flags(), map[string]string{
				"output":    "APP_RESULTS_DIR",
				"store":     "APP_STORE",
				"tolerance": "NORMALIZE_TOLERANCE",
				"zero-mean": "NORMALIZE_ZERO_MEAN_POLICY",
				"refine":    "NORMALIZE_REFINE",
				"workers":   "NORMALIZE_WORKERS",
			})
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var t *float64
			if cmd.Flags().Changed("target") {
				t = &target
			}
			return runNormalize(cmd.Context(), v, zipPath, t, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&zipPath, "zip", "z", "", "path to the ZIP file containing satellite images")
	cmd.Flags().Float64VarP(&target, "target", "t", 0, "target intensity (default: use global average)")
	cmd.Flags().StringP("output", "o", "./results", "output directory for normalized images")
	cmd.Flags().String("store", "local", `results store: "local" or "s3"`)
	cmd.Flags().Float64("tolerance", 1.0, "allowed distance between normalized mean and target")
	cmd.Flags().String("zero-mean", "leave", `zero mean image policy: "leave" or "fill"`)
	cmd.Flags().Bool("refine", false, "apply corrective passes to images outside tolerance")
	cmd.Flags().Int("workers", 0, "parallel workers (default: number of CPUs)")
	_ = cmd.MarkFlagRequired("zip")

	return cmd
}

func runNormalize(ctx context.Context, v *viper.Viper, zipPath string, target *float64, out io.Writer) error {
	zl, err := logger.NewConsole(v.GetString("LOG_LEVEL"))
	if err != nil {
		return err
	}
	defer zl.Sync()
	log := zl.Sugar()

	cfg, err := config.LoadFrom(v)
	if err != nil {
		log.Errorf("Failed to load config: %v", err)
		return err
	}

	data, err := os.ReadFile(zipPath)
	if err != nil {
		log.Errorf("ZIP file not found: %s", zipPath)
		return err
	}

	store, err := server.NewStore(ctx, cfg, zl)
	if err != nil {
		log.Errorf("Failed to create results store: %v", err)
		return err
	}

	svc := service.NewNormalizeService(store, cfg.Normalize.Options(), zl)
	run, err := svc.Normalize(ctx, data, target)
	if err != nil {
		log.Errorf("Normalization failed: %v", err)
		return err
	}

	printReport(out, run, cfg)
	return nil
}

func printReport(w io.Writer, run *domain.Run, cfg *config.Config) {
	rep := run.Report

	fmt.Fprintf(w, "Run %s\n", run.ID)
	fmt.Fprintf(w, "Global average intensity: %.2f\n", rep.GlobalMean)
	if rep.Target != rep.GlobalMean {
		fmt.Fprintf(w, "Target intensity:         %.2f\n", rep.Target)
	}
	fmt.Fprintf(w, "Processing time:          %.2fs\n", rep.Elapsed.Seconds())
	fmt.Fprintf(w, "Images processed:         %d\n", rep.Total)
	fmt.Fprintf(w, "Within threshold (±%.2g):  %d/%d\n", rep.Tolerance, rep.Passed, rep.Total)
	fmt.Fprintf(w, "Score:                    %.1f/10 (%s)\n", rep.Score, rep.Verdict)

	fmt.Fprintln(w)
	for _, img := range rep.Images {
		status := "PASSED"
		if !img.Passed {
			status = "FAILED"
		}
		fmt.Fprintf(w, "  %-32s before=%7.2f after=%7.2f diff=%6.2f scale=%.4f %s",
			img.ID, img.MeanBefore, img.MeanAfter, img.Difference, img.Scale, status)
		for _, f := range img.Flags {
			fmt.Fprintf(w, " [%s]", f)
		}
		fmt.Fprintln(w)
	}

	for _, s := range rep.Skipped {
		fmt.Fprintf(w, "  %-32s skipped: %s\n", s.Entry, s.Reason)
	}

	if cfg.App.Store == config.StoreLocal {
		fmt.Fprintf(w, "\nNormalized images saved to: %s/results/%s\n", cfg.App.ResultsDir, run.ID)
	} else {
		fmt.Fprintf(w, "\nNormalized images saved to: s3://%s/results/%s\n", cfg.S3.BucketName, run.ID)
	}
}
