package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/franz/crate/internal/config"
	"github.com/franz/crate/internal/scan"
	"github.com/franz/crate/internal/store"
	"github.com/franz/crate/internal/util"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Run a one-shot library scan",
	Long: `Scan the music directory and update the library index, then exit.
Useful for cron jobs and for priming the database before starting the
API. The same scan is available through the API while serving.`,
	RunE: runScanCmd,
}

func init() {
	scanCmd.Flags().Bool("recursive", true, "descend into album subdirectories")
	scanCmd.Flags().Int("max-depth", 3, "maximum directory depth below an artist")
	viper.BindPFlag("recursive", scanCmd.Flags().Lookup("recursive"))
	viper.BindPFlag("max-depth", scanCmd.Flags().Lookup("max-depth"))
	rootCmd.AddCommand(scanCmd)
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer st.Close()

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

	if _, err := os.Stat(settings.MusicDir); os.IsNotExist(err) {
		return fmt.Errorf("music directory does not exist: %s", settings.MusicDir)
	}

	scanner := scan.New(st)
	result := scanner.Start(scan.Options{
		Recursive: viper.GetBool("recursive"),
		MaxDepth:  viper.GetInt("max-depth"),
	})
	if !result.Started {
		return fmt.Errorf("a scan is already running")
	}

	util.InfoLog("Scanning %s", settings.MusicDir)
	startTime := time.Now()

	// Indeterminate bar: the walk discovers files as it goes
	var bar *progressbar.ProgressBar
	if util.IsTerminal(os.Stdout.Fd()) && !util.IsQuiet() {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("Scanning"),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("files"),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetRenderBlankState(true),
		)
	}

	done := make(chan struct{})
	go func() {
		scanner.Wait()
		close(done)
	}()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
poll:
	for {
		select {
		case <-done:
			break poll
		case <-ticker.C:
			state, err := scanner.Status()
			if err != nil || state == nil {
				continue
			}
			if bar != nil {
				bar.Describe(fmt.Sprintf("Scanning | %d scanned | %d skipped",
					state.ScannedFiles, state.SkippedFiles))
				bar.Set64(int64(state.ScannedFiles))
			}
		}
	}
	if bar != nil {
		bar.Finish()
	}

	state, err := scanner.Status()
	if err != nil {
		return err
	}
	if state.Status == store.ScanStatusError {
		return fmt.Errorf("scan failed: %s", state.Error)
	}

	util.SuccessLog("Scan complete in %v", time.Since(startTime).Round(time.Millisecond))
	util.InfoLog("  Files scanned: %d", state.ScannedFiles)
	util.InfoLog("  Files skipped: %d", state.SkippedFiles)
	for reason, count := range state.SkippedReasons {
		util.DebugLog("    %s: %d", reason, count)
	}

	return nil
}
