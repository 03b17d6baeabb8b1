package commands

import (
	"context"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// ProvidersCmd shows provider availability, models and accumulated usage
var ProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show AI provider availability and usage",
	RunE:  runProviders,
}

func runProviders(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	names := s.registry.List()
	if len(names) == 0 {
		pterm.Warning.Println("No providers configured")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	usage := s.registry.UsageReport()
	rows := pterm.TableData{{"Provider", "Available", "Models", "Requests", "Errors"}}
	for _, name := range names {
		p, err := s.registry.Get(name)
		if err != nil {
			continue
		}

		available := "no"
		modelCount := 0
		if p.Available(ctx) {
			available = "yes"
			if models, err := p.Models(ctx); err == nil {
				modelCount = len(models)
			}
		}

		u := usage[name]
		rows = append(rows, []string{
			name,
			available,
			pterm.Sprintf("%d", modelCount),
			pterm.Sprintf("%d", u.TotalRequests),
			pterm.Sprintf("%d", u.ErrorCount),
		})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
}
