package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"flexhal/board"
	"flexhal/config"
	"flexhal/status"
)

func (a *app) dictionaryCommand() *cobra.Command {
	var raw bool
	dict := &cobra.Command{
		Use:   "dictionary",
		Short: "Print the command dictionary of a Klipper controller",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cc, err := a.cfg.Controller(a.controller)
			if err != nil {
				return err
			}
			if cc.Driver != config.DriverKlipper || cc.Klipper == nil {
				return status.Errorf(status.Param, "controller %s uses the %s driver, not %s", cc.Name, cc.Driver, config.DriverKlipper)
			}
			m, err := board.DialMCU(cmd.Context(), cc.Klipper, a.log)
			if err != nil {
				return err
			}
			defer m.Close()

			if raw {
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\n", m.DictionaryRaw())
				return err
			}
			m.PrintDictionary(cmd.OutOrStdout())
			return nil
		},
	}
	dict.Flags().BoolVar(&raw, "raw", false, "print the dictionary JSON as received")
	return dict
}
