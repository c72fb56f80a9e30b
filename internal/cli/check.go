package cli

import (
	"errors"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/zhuyongyong/crosswalk/internal/readiness"
)

var checkYes bool

func init() {
	checkCmd.Flags().BoolVarP(&checkYes, "yes", "y", false, "Acquire and retry without prompting")
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(acquireCmd)
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check the runtime and acquire it if needed",
	Long: `Inspect the installed runtime. A bundled archive is decompressed first.
When the runtime is missing or older than required you are asked before it
is downloaded, or before the store listing is opened when no download URL
is configured.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := newConsoleHost(cmd.OutOrStdout(), cmd.InOrStdin(), checkYes)
		return runReadiness(cmd, host, checkYes, nil)
	},
}

var acquireCmd = &cobra.Command{
	Use:   "acquire",
	Short: "Acquire the runtime without prompting",
	Long:  `Same as "check --yes".`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := newConsoleHost(cmd.OutOrStdout(), cmd.InOrStdin(), true)
		return runReadiness(cmd, host, true, nil)
	},
}

// runReadiness wires a session for host, lets prepare defer work on the
// machine, and runs the machine until it settles. Ctrl-C cancels the
// acquisition.
func runReadiness(cmd *cobra.Command, host *consoleHost, autoAcquire bool, prepare func(*session)) error {
	s, err := loadSettings()
	if err != nil {
		return err
	}
	sess, err := newSession(s, logger, host, autoAcquire)
	if err != nil {
		return err
	}
	m := sess.machine
	host.ctl = m
	if prepare != nil {
		prepare(sess)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	m.Post(m.CheckReadiness)
	err = m.Run(ctx)
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		m.CancelAcquisition()
		return readiness.ErrCancelled
	}
	return err
}
