package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zhuyongyong/crosswalk/internal/branding"
	"github.com/zhuyongyong/crosswalk/internal/config"
	"github.com/zhuyongyong/crosswalk/internal/logging"
)

var (
	buildVersion string
	buildCommit  string
	buildDate    string
)

var (
	logLevel string
	logJSON  bool
	logger   = zap.NewNop()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides "+config.KeyLogLevel)
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Write logs as JSON")
}

var rootCmd = &cobra.Command{
	Use:   branding.CLIName(),
	Short: branding.Description(),
	Long: branding.DisplayName() + ` checks that the shared runtime is installed at the required version and
acquires it when it is not: by decompressing a bundled archive, downloading
a package, or opening the runtime's store listing.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return err
		}

		level := logLevel
		if level == "" {
			level = config.Get(config.KeyLogLevel)
		}
		l, err := logging.New(level, logJSON)
		if err != nil {
			return fmt.Errorf("configuring logging: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command with build info injected via ldflags.
func Execute(version, commit, date string) error {
	buildVersion = version
	buildCommit = commit
	buildDate = date
	return rootCmd.Execute()
}
