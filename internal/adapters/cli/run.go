package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/forge-platform/firebridge/internal/adapters/wasm"
	"github.com/forge-platform/firebridge/internal/bg"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var runTimeout time.Duration

var runCmd = &cobra.Command{
	Use:   "run <guest.wasm> [guest args...]",
	Short: "Run a WebAssembly guest against the Firebase services",
	Long: `Load a WebAssembly guest, run its entry point on the host loop and keep
delivering signals to it until interrupted or the timeout expires.

The guest calls host methods through the "firebase" import module and
receives signals on its firebase_on_signal export.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if runTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, runTimeout)
			defer cancel()
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		runner := bg.NewAsync()
		st, err := buildStack(ctx, cfg, logger, stackOptions{runner: runner, remote: true})
		if err != nil {
			return err
		}
		defer st.Close(context.Background())

		rt, err := wasm.NewRuntime(ctx, st.plugin, logger, wasm.RuntimeOptions{
			Stdout: cmd.OutOrStdout(),
			Stderr: cmd.ErrOrStderr(),
			Args:   args[1:],
		})
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		if err := rt.LoadFile(ctx, args[0]); err != nil {
			return err
		}
		st.loop.Subscribe(rt.SignalHandler(ctx))

		var startErr error
		st.loop.Post(func() {
			if err := rt.Start(ctx); err != nil {
				startErr = err
				cancel()
			}
		})

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return st.loop.Run(gctx)
		})
		if st.exporter != nil {
			g.Go(func() error {
				return st.exporter.Run(gctx)
			})
		}

		name, _ := rt.Loaded()
		logger.Info("Guest running", "guest", name, "timeout", runTimeout)
		if err := g.Wait(); err != nil {
			return err
		}
		if startErr != nil {
			return startErr
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s stopped, %d requests outstanding\n",
			mark(true), name, st.plugin.Bridge().Outstanding())
		return nil
	},
}

func init() {
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "stop after this duration (0 runs until interrupted)")
}
