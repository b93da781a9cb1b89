package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"satnorm/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()

	root := &cobra.Command{
		Use:           "satnorm",
		Short:         "Normalize the brightness of batches of grayscale satellite images",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	bindFlags(v, root.PersistentFlags(), map[string]string{"log-level": "LOG_LEVEL"})

	root.AddCommand(
		newServeCmd(v),
		newNormalizeCmd(v),
		newGenerateCmd(),
	)
	return root
}

// bindFlags maps flag names to config keys. A flag only wins over the
// environment when it was set explicitly.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := fs.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}
