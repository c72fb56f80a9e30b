package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zhuyongyong/crosswalk/internal/deferred"
	"github.com/zhuyongyong/crosswalk/internal/runtime"
)

var runYes bool

func init() {
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "Acquire the runtime without prompting")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run [-- args...]",
	Short: "Run the runtime entrypoint once the runtime is ready",
	Long: `Queue a run of the runtime entrypoint, then check the runtime and acquire it
if needed. The entrypoint starts as soon as the runtime is ready.

  xwalk run -- --version
  xwalk run -y -- app/index.html`,
	RunE: func(cmd *cobra.Command, args []string) error {
		host := newConsoleHost(cmd.ErrOrStderr(), cmd.InOrStdin(), runYes)

		var output *runtime.Output
		err := runReadiness(cmd, host, runYes, func(sess *session) {
			m := sess.machine
			m.DeferInvocation(deferred.NewInvocation("run entrypoint", func(a ...any) (any, error) {
				h, ok := m.Holder().Handle()
				if !ok {
					return nil, errors.New("runtime not initialized")
				}
				runner := &runtime.Runner{Stdout: cmd.OutOrStdout(), Stderr: cmd.ErrOrStderr()}
				out, err := runner.Run(cmd.Context(), h, a[0].([]string))
				output = out
				return out, err
			}, args))
		})
		if err != nil {
			return err
		}
		if host.ready != nil && host.ready.DrainErr != nil {
			return host.ready.DrainErr
		}
		if output != nil && output.ExitCode != 0 {
			return fmt.Errorf("runtime exited with status %d", output.ExitCode)
		}
		return nil
	},
}
