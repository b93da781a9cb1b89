package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"satnorm/internal/synth"
)

func newGenerateCmd() *cobra.Command {
	p := synth.DefaultParams()
	var zipPath string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a ZIP of synthetic test images with varying brightness",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := synth.Images(p)
			if err != nil {
				return err
			}

			f, err := os.Create(zipPath)
			if err != nil {
				return err
			}
			if err := synth.WriteZip(f, entries); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d test images (%dx%d, base intensity %.0f..%.0f) in %s\n",
				p.Num, p.Size, p.Size, p.MinIntensity, p.MaxIntensity, zipPath)
			return nil
		},
	}

	cmd.Flags().StringVarP(&zipPath, "zip", "z", "test_images.zip", "path of the ZIP file to write")
	cmd.Flags().IntVarP(&p.Num, "num", "n", p.Num, "number of images")
	cmd.Flags().IntVarP(&p.Size, "size", "s", p.Size, "image width and height")
	cmd.Flags().Float64Var(&p.MinIntensity, "min", p.MinIntensity, "minimum base intensity")
	cmd.Flags().Float64Var(&p.MaxIntensity, "max", p.MaxIntensity, "maximum base intensity")
	cmd.Flags().Float64Var(&p.NoiseSigma, "noise", p.NoiseSigma, "standard deviation of gaussian noise")
	cmd.Flags().Uint64Var(&p.Seed, "seed", p.Seed, "random seed")
	return cmd
}
