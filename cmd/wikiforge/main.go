package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/forgedocs/wikiforge/cmd/wikiforge/commands"
	"github.com/forgedocs/wikiforge/logger"
)

var rootCmd = &cobra.Command{
	Use:   "wikiforge",
	Short: "WikiForge - AI-powered wiki documentation generator",
	Long: `WikiForge generates wiki-style documentation for code repositories using
AI providers (OpenAI, DeepSeek, Gemini, Ollama).

Available commands:
  serve     - Start the HTTP/WebSocket API server
  generate  - Generate a wiki for one repository and wait for it
  providers - Show provider availability and usage
  version   - Print version information

Examples:
  wikiforge serve                                        # Start the API server
  wikiforge generate https://github.com/gin-gonic/gin    # One-shot generation
  wikiforge providers                                    # Check provider status`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		level := logger.VerbosityToLevel(verbosity)
		if err := logger.InitializeWithLevel(false, level); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	// Load .env before viper reads the environment
	_ = godotenv.Load()

	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv)")

	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.GenerateCmd)
	rootCmd.AddCommand(commands.ProvidersCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	defer logger.Cleanup()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
