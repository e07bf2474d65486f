// Command xinfo inspects an X display over the wire: server setup, atoms,
// extensions and round-trip latency.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	x11 "github.com/qlentz/x11"
)

var (
	flagDisplay string
	flagScreen  int
	flagAuth    string
	flagTimeout time.Duration
	flagVerbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xinfo",
		Short: "Inspect an X display",
		Long: `xinfo connects to an X server and reports what it finds.

Examples:
  xinfo info
  xinfo info --display :1 --screen 0
  xinfo atoms WM_CLASS _NET_WM_NAME
  xinfo ext BIG-REQUESTS XC-MISC
  xinfo ping --count 10`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagDisplay, "display", "d", "", "Display string (default $DISPLAY)")
	pf.IntVar(&flagScreen, "screen", -1, "Screen number, overriding the display string")
	pf.StringVar(&flagAuth, "auth", "", "Authority file (default $XAUTHORITY)")
	pf.DurationVar(&flagTimeout, "timeout", 5*time.Second, "Time limit for the whole command")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Log engine internals to stderr")

	rootCmd.AddCommand(
		infoCmd(),
		atomsCmd(),
		extCmd(),
		pingCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "xinfo: %s\n", err)
		os.Exit(1)
	}
}

// connect dials the display selected by the global flags. The caller owns
// both the connection and the cancel.
func connect() (*x11.Conn, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(context.Background(), flagTimeout)

	display, err := x11.ParseDisplay(flagDisplay)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	if flagScreen >= 0 {
		display.Screen = flagScreen
	}

	cfg := x11.Config{AuthFile: flagAuth}
	if flagVerbose {
		logger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		cfg.Logger = &logger
	}

	conn, err := x11.ConnectWithConfig(ctx, display.String(), cfg)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return conn, ctx, cancel, nil
}
