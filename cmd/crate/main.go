package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/crate/internal/config"
	"github.com/franz/crate/internal/util"
)

var (
	// Version and GitSHA are set at build time
	Version = "dev"
	GitSHA  = "unknown"

	cfgFile string

	rootCmd = &cobra.Command{
		Use:   "crate",
		Short: "crate - music library reconciliation for a read-only collection",
		Long: `crate indexes a read-only music library, syncs expected discographies
from the release-group service, and reports what is owned, missing, or
ignored per artist. The library is never written to; all state lives in
an embedded database.`,
		Version: Version,
	}
)

func init() {
	cobra.OnInitialize(func() {
		config.Init(cfgFile)
		util.SetVerbose(viper.GetBool("verbose"))
		util.SetQuiet(viper.GetBool("quiet"))

		// CRATE_APP_VERSION / CRATE_GIT_SHA override the build-time
		// values, for containers built from generic binaries
		if v := viper.GetString("app-version"); v != "" {
			Version = v
		}
		if v := viper.GetString("git-sha"); v != "" {
			GitSHA = v
		}
	})

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./crate.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "/data", "directory for the state database")
	rootCmd.PersistentFlags().String("music-dir", "/music", "read-only music library root")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "quiet output (errors only)")

	viper.BindPFlag("data-dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	viper.BindPFlag("music-dir", rootCmd.PersistentFlags().Lookup("music-dir"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
