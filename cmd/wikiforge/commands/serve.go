package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/forgedocs/wikiforge/config"
	"github.com/forgedocs/wikiforge/server"
)

// ServeCmd starts the WikiForge API server
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the WikiForge HTTP and WebSocket API server",
	Long: `Launch the WikiForge server. Clients submit generation requests over the
JSON API and receive live progress over WebSocket.`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := buildStack()
	if err != nil {
		return err
	}
	defer s.close()

	if servePort > 0 {
		s.cfg.Server.Port = &servePort
	}
	port := config.DefaultServerPort
	if s.cfg.Server.Port != nil {
		port = *s.cfg.Server.Port
	}

	srv := server.New(s.cfg, s.registry, s.generator, s.store, s.tracker)

	pterm.DefaultHeader.WithFullWidth().Printf("WikiForge Server")
	pterm.Println()
	pterm.Info.Printf("Listening on http://localhost:%d\n", port)
	pterm.Info.Printf("Providers: %v\n", s.registry.List())
	pterm.Info.Printf("Wiki storage: %s\n", s.cfg.Storage.Dir)
	pterm.Println()

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		pterm.Println()
		pterm.Info.Printf("Received %s, shutting down\n", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
