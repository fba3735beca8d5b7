package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"flexhal/board"
	"flexhal/config"
	"flexhal/logger"
	"flexhal/timeutil"
)

type app struct {
	// Global flags
	configPath string
	controller string
	verbose    bool

	cfg *config.Config
	log *logger.Logger
}

// NewRootCommand builds the flexhal command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "flexhal",
		Short: "Configure and drive GPIO pins on any supported controller",
		Long: `flexhal opens a GPIO controller described in a board file and configures,
reads or drives its pins. Without a board file a simulated 2x16 controller is used.

Examples:
  flexhal info                                   # Show ports and pin counts
  flexhal -c printer write 0 25 high             # Drive pin 25 of a Klipper MCU high
  flexhal read 0 3                               # Configure pin 3 as input and read it
  flexhal port write 0 0x0f --mask 0xff          # Drive the low byte of port 0
  flexhal shell                                  # Interactive console`,
		SilenceUsage:      true,
		PersistentPreRunE: a.load,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "flexhal.yaml", "board configuration file")
	pf.StringVarP(&a.controller, "controller", "c", "", "controller name (default from the board file)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")

	for _, o := range pinOps {
		root.AddCommand(a.opCommand(o))
	}
	root.AddCommand(a.portCommand(), a.blinkCommand(), a.shellCommand(), a.dictionaryCommand())
	return root
}

// Execute runs the root command until it finishes or the process is interrupted.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func (a *app) load(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	log, err := cfg.Log.NewLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if a.verbose && log.Level() < logger.Debug {
		log.SetLevel(logger.Debug)
	}
	a.cfg, a.log = cfg, log
	return nil
}

// withSession opens the selected controller for the duration of fn.
func (a *app) withSession(cmd *cobra.Command, fn func(*session) error) error {
	ctrl, err := board.Open(cmd.Context(), a.cfg, a.controller, a.log)
	if err != nil {
		return err
	}
	defer func() {
		if err := ctrl.Close(); err != nil {
			a.log.Warnf("cli", "close %s: %v", ctrl.Name(), err)
		}
	}()
	return fn(&session{
		ctrl:  ctrl,
		out:   cmd.OutOrStdout(),
		clock: timeutil.New(nil),
	})
}

func (a *app) opCommand(o op) *cobra.Command {
	return &cobra.Command{
		Use:   o.use,
		Short: o.short,
		Args:  cobra.RangeArgs(o.minArgs, o.maxArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session) error {
				return o.run(cmd.Context(), s, args)
			})
		},
	}
}

func (a *app) portCommand() *cobra.Command {
	portCmd := &cobra.Command{
		Use:   "port",
		Short: "Bulk access to a whole port",
	}
	portCmd.AddCommand(a.opCommand(portReadOp))

	var mask string
	write := a.opCommand(portWriteOp)
	write.Use = "write <port> <value>"
	write.Args = cobra.ExactArgs(2)
	write.Flags().StringVar(&mask, "mask", "0xffffffff", "pins to drive; unconfigured pins in the mask become outputs")
	write.RunE = func(cmd *cobra.Command, args []string) error {
		return a.withSession(cmd, func(s *session) error {
			return portWriteOp.run(cmd.Context(), s, append(args, mask))
		})
	}
	portCmd.AddCommand(write)
	return portCmd
}

func (a *app) blinkCommand() *cobra.Command {
	var count int
	var interval string
	blink := &cobra.Command{
		Use:   "blink <port> <pin>",
		Short: "Toggle an output pin",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session) error {
				return blinkOp.run(cmd.Context(), s, append(args, fmt.Sprint(count), interval))
			})
		},
	}
	blink.Flags().IntVarP(&count, "count", "n", 10, "number of toggles")
	blink.Flags().StringVarP(&interval, "interval", "i", "500ms", "time between toggles")
	return blink
}

func (a *app) shellCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive pin console on one open controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(s *session) error {
				return s.repl(cmd.Context(), cmd.InOrStdin())
			})
		},
	}
}
