package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/crate/internal/config"
	"github.com/franz/crate/internal/discography"
	"github.com/franz/crate/internal/musicbrainz"
	"github.com/franz/crate/internal/scan"
	"github.com/franz/crate/internal/server"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
	"github.com/franz/crate/internal/watch"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Start the reconciliation service: opens the state database, begins
watching the music directory for changes, and serves the API until the
process is stopped.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Int("port", 4000, "HTTP listen port")
	viper.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	util.InfoLog("Opening database: %s", cfg.DBPath)
	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

	// First run: persist the configured music dir so later settings
	// edits through the API start from it
	settings, err := st.GetSettings()
	if err != nil {
		return err
	}
	if settings.UpdatedAt == 0 {
		settings.MusicDir = cfg.MusicDir
		if err := st.SaveSettings(settings); err != nil {
			return fmt.Errorf("failed to seed settings: %w", err)
		}
	}

	client := musicbrainz.New(musicbrainz.DefaultBaseURL, Version)
	defer client.Close()

	scanner := scan.New(st)
	disco := discography.New(st, client)

	srv := server.New(server.Config{
		Store:       st,
		Scanner:     scanner,
		Discography: disco,
		Watcher:     startWatcher(settings.MusicDir),
		Version:     Version,
		GitSHA:      GitSHA,
	})

	util.SuccessLog("crate %s (%s) ready", Version, GitSHA)
	return srv.Run(cfg.Port)
}

// startWatcher is best-effort: a library on a network mount may not
// support inotify, and the service is still useful without it.
func startWatcher(musicDir string) server.Watcher {
	w, err := watch.Start(musicDir)
	if err != nil {
		util.WarnLog("Filesystem watcher disabled: %v", err)
		return nil
	}
	return w
}
