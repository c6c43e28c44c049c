package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hkjang/codelens/internal/analysis"
	"github.com/hkjang/codelens/internal/rules"
)

func newRulesCmd(a *app) *cobra.Command {
	var (
		category string
		severity string
		all      bool
	)

	cmd := &cobra.Command{
		Use:   "rules [path]",
		Short: "List the analysis rules in effect",
		Long: `Rules prints the rule registry as configured for the given path: the
builtin ruleset plus any extra rule file, minus config-disabled IDs.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := rules.Filter{Category: category, EnabledOnly: !all}
			if severity != "" {
				sev, err := analysis.ParseSeverity(severity)
				if err != nil {
					return fmt.Errorf("--severity: %w", err)
				}
				filter.Severity = sev
			}
			cfg, err := a.loadConfig(rootArg(args))
			if err != nil {
				return err
			}
			engine, err := buildEngine(cfg, a.logger())
			if err != nil {
				return err
			}
			return printRules(engine, filter)
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "only rules in this category")
	cmd.Flags().StringVar(&severity, "severity", "", "only rules at this severity")
	cmd.Flags().BoolVar(&all, "all", false, "include disabled rules")
	return cmd
}

func printRules(engine *rules.Engine, filter rules.Filter) error {
	defs := engine.Rules(filter)
	if len(defs) == 0 {
		fmt.Println("No rules match.")
		return nil
	}

	gray := color.New(color.FgHiBlack).SprintFunc()
	for _, d := range defs {
		langs := "all"
		if len(d.Languages) > 0 {
			parts := make([]string, len(d.Languages))
			for i, l := range d.Languages {
				parts[i] = string(l)
			}
			langs = strings.Join(parts, ",")
		}
		state := ""
		if !d.Enabled {
			state = gray(" (disabled)")
		}
		fmt.Printf("  %s  %s  %-10s %-12s %s%s\n",
			d.ID,
			severitySprint(d.Severity)(fmt.Sprintf("%-8s", d.Severity)),
			d.Category, langs, d.Name, state)
	}
	fmt.Printf("\n%d rules (registry version %d)\n", len(defs), engine.Version())
	return nil
}
