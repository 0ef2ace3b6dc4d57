package main

import (
	"fmt"

	"agentarena/internal/logging"
	"agentarena/internal/registry"
	"agentarena/internal/units"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newUnitsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List the built-in units and their kinds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.New()
			if err := units.RegisterBuiltins(reg, a.logs.Get(logging.CategoryUnits)); err != nil {
				return err
			}

			t := table.New().
				Border(lipgloss.RoundedBorder()).
				Headers("NAME", "KIND")
			for _, e := range reg.Entries() {
				t.Row(e.Name, string(e.Kind))
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), t.Render())
			return err
		},
	}
}
