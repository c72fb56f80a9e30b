package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/zhuyongyong/crosswalk/internal/branding"
	"github.com/zhuyongyong/crosswalk/internal/config"
	"github.com/zhuyongyong/crosswalk/internal/version"
)

var configKeys = []string{
	config.KeyDownloadURL,
	config.KeyRequiredVersion,
	config.KeyRuntimeDir,
	config.KeyBundledArchive,
	config.KeyChecksum,
	config.KeyStoreURL,
	config.KeySigner,
	config.KeyPollInterval,
	config.KeyPausedTimeout,
	config.KeyRunningTimeout,
	config.KeyLogLevel,
	config.KeyS3Endpoint,
	config.KeyS3AccessKey,
	config.KeyS3SecretKey,
	config.KeyS3UseSSL,
	config.KeyS3Region,
}

func init() {
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configGetCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage user settings",
	Long: `Read and write ` + branding.DisplayName() + ` configuration stored at ~/` + branding.HomeDir() + `/config.yaml.
Every key can also be set through the environment, e.g. ` + branding.EnvVar(config.KeyDownloadURL) + `.`,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if !slices.Contains(configKeys, key) {
			return fmt.Errorf("unknown config key %q", key)
		}
		if key == config.KeyRequiredVersion {
			if err := version.Validate(value); err != nil {
				return err
			}
		}
		if err := config.Set(key, value); err != nil {
			return fmt.Errorf("setting config key %q: %w", key, err)
		}
		if _, err := config.Current(); err != nil {
			return fmt.Errorf("saved %s, but the settings no longer decode: %w", key, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", key, value)
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:       "get <key>",
	Short:     "Get a configuration value",
	Args:      cobra.ExactArgs(1),
	ValidArgs: configKeys,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), config.Get(args[0]))
		return nil
	},
}
