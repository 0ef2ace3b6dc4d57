package main

import (
	"errors"
	"fmt"

	"agentarena/internal/experiment"
	"agentarena/internal/unit"

	"github.com/spf13/cobra"
)

// errValidation is returned when a descriptor loads but names units that
// cannot serve their slot.
var errValidation = errors.New("descriptor references unusable units")

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <descriptor>",
		Short: "Check a descriptor without running it",
		Long: `Loads and validates a descriptor, compiles its scripts and resolves every
unit it names. Runner slots must hold runners and the adversarial slot must
hold a generator.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, reg, err := a.prepare(args[0])
			if err != nil {
				return err
			}

			var problems []string
			check := func(name string, want unit.Kind) {
				u, err := reg.Get(name)
				if err != nil {
					problems = append(problems, err.Error())
					return
				}
				if got := unit.KindOf(u); got != want {
					problems = append(problems, fmt.Sprintf("unit %q is a %s, slot requires a %s", name, got, want))
				}
			}

			runners := d.Variants
			if d.IsAdversarial() {
				check(d.AdversarialVariant, unit.KindGenerator)
				runners = d.TargetVariants
			}
			for _, name := range runners {
				check(name, unit.KindRunner)
			}

			out := cmd.OutOrStdout()
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintf(out, "  ✗ %s\n", p)
				}
				return fmt.Errorf("%w: %d problem(s) in %s", errValidation, len(problems), args[0])
			}
			fmt.Fprintf(out, "✓ %s is valid (%s, %d units)\n", args[0], shape(d), len(d.UnitNames()))
			return nil
		},
	}
}

func shape(d *experiment.Descriptor) string {
	if d.IsAdversarial() {
		return "adversarial"
	}
	return "standard"
}
