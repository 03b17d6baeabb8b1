package commands

import (
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgedocs/wikiforge/errors"
	"github.com/forgedocs/wikiforge/wiki"
)

// GenerateCmd runs a one-shot generation and waits for it to finish
var GenerateCmd = &cobra.Command{
	Use:   "generate <repository-url>",
	Short: "Generate a wiki for a repository and wait for completion",
	Long: `Generate documentation for one repository synchronously. Progress is
printed as generation advances; the command exits once the wiki is written
to storage.

Use the reserved source "template-docs" to generate from the template set
instead of repository analysis.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

var (
	generateProvider  string
	generateModel     string
	generateLanguages []string
	generateTimeout   time.Duration
)

func init() {
	GenerateCmd.Flags().StringVar(&generateProvider, "provider", "", "AI provider to use (default: configured default)")
	GenerateCmd.Flags().StringVar(&generateModel, "model", "", "Model name (default: provider default)")
	GenerateCmd.Flags().StringSliceVar(&generateLanguages, "languages", nil, "Languages to generate (e.g. en,zh)")
	GenerateCmd.Flags().DurationVar(&generateTimeout, "timeout", 30*time.Minute, "Abort if generation takes longer than this")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	req := &wiki.GenerationRequest{
		RepoURL:   args[0],
		Provider:  generateProvider,
		Model:     generateModel,
		Languages: generateLanguages,
	}

	w, err := s.generator.GenerateWiki(req)
	if err != nil {
		return errors.Wrap(err, "failed to start generation")
	}

	pterm.Info.Printf("Generating wiki %s\n", w.ID)
	spinner, _ := pterm.DefaultSpinner.Start("Starting generation...")

	deadline := time.After(generateTimeout)
	for {
		select {
		case evt := <-s.generator.Progress():
			if evt.WikiID != w.ID {
				continue
			}
			spinner.UpdateText(pterm.Sprintf("[%3d%%] %s", evt.Progress, evt.Message))

			switch evt.Status {
			case wiki.StatusCompleted:
				spinner.Success("Generation completed")
				return printResult(s, w.ID)
			case wiki.StatusFailed:
				spinner.Fail(pterm.Sprintf("Generation failed: %s", evt.Error))
				return errors.Newf("generation failed: %s", evt.Error)
			}

		case <-deadline:
			spinner.Fail("Timed out waiting for generation")
			return errors.Newf("generation timed out after %s", generateTimeout)
		}
	}
}

func printResult(s *stack, id string) error {
	w, err := s.store.LoadWiki(id)
	if err != nil {
		return errors.Wrap(err, "failed to load generated wiki")
	}

	pterm.Println()
	pterm.Success.Printf("Wiki: %s\n", w.Title)
	pterm.Printf("  ID:        %s\n", w.ID)
	pterm.Printf("  Pages:     %d\n", len(w.Pages))
	pterm.Printf("  Tokens:    %d\n", w.Metadata.TokensUsed)
	pterm.Printf("  Duration:  %.1fs\n", w.Metadata.GenerationTime)
	pterm.Println()

	for _, page := range w.Pages {
		pterm.Printf("  %d. %s (%s, %d words, ~%d min)\n",
			page.Order, page.Title, page.Language, page.WordCount, page.ReadingTime)
	}
	return nil
}
