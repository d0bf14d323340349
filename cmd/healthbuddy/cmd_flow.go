package main

import (
	"fmt"
	"io"
	"os"

	"github.com/felixgeelhaar/healthbuddy/internal/config"
	"github.com/felixgeelhaar/healthbuddy/internal/onboarding"
)

// cmdFlow shows or validates onboarding flows
func cmdFlow(args []string) error {
	if len(args) > 0 && args[0] == "validate" {
		if len(args) < 2 {
			return fmt.Errorf("flow file required (usage: healthbuddy flow validate <file>)")
		}
		flow, err := onboarding.LoadFlow(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("✓ %s v%d is valid (%d steps)\n", flow.ID(), flow.Version(), flow.Len())
		return nil
	}

	cfg, err := config.LoadLocalConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	flow := onboarding.DefaultFlow()
	if cfg.Onboarding.FlowPath != "" {
		if flow, err = onboarding.LoadFlow(cfg.Onboarding.FlowPath); err != nil {
			return err
		}
	}

	printFlow(os.Stdout, flow)
	return nil
}

func printFlow(w io.Writer, flow *onboarding.Flow) {
	fmt.Fprintf(w, "Flow %s v%d\n", flow.ID(), flow.Version())
	fmt.Fprintln(w, "==============")

	for i, step := range flow.Steps() {
		optional := ""
		if step.Skippable() {
			optional = ", optional"
		}
		fmt.Fprintf(w, "%2d. %-24s %-18s (%s%s)\n", i+1, step.ID, step.Phase, step.Type, optional)
		if step.Field != "" {
			fmt.Fprintf(w, "    sets %s", step.Field)
			if len(step.Options) > 0 {
				fmt.Fprintf(w, " from %d options", len(step.Options))
			}
			fmt.Fprintln(w)
		}
	}
}
