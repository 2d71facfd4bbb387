package appbootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"incidents-reseau/api"
	"incidents-reseau/config"
	"incidents-reseau/core/store"
	"incidents-reseau/core/utils"
)

// Run wires the whole application together and serves until SIGINT/SIGTERM.
func Run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := utils.NewLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(cfg, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, logger); err != nil {
		return err
	}

	comp, err := composeRuntime(ctx, cfg, db, logger)
	if err != nil {
		return err
	}
	defer comp.queue.Close()

	if cfg.SeedDemoData {
		added, err := comp.serverDeps.Store.SeedDemoData(ctx)
		if err != nil {
			return err
		}
		if added > 0 {
			logger.Printf("%d incidents de démonstration insérés", added)
		}
	}

	if err := comp.auditor.Start(ctx); err != nil {
		return err
	}
	defer comp.auditor.Stop()

	server := api.NewServer(comp.serverDeps)
	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Printf("serveur démarré sur %s", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		logger.Printf("arrêt demandé, fermeture en cours")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownWait)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Errorf("arrêt du serveur: %v", err)
		}
	}
	return nil
}
