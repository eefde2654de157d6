package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"llamad/internal/config"
	"llamad/internal/httpapi"
	"llamad/internal/manager"
	"llamad/internal/registry"
)

type serveFlags struct {
	addr         string
	modelsDir    string
	stateDir     string
	budgetMB     int
	marginMB     int
	defaultModel string
	corsOrigins  string
}

func newServeCmd(c *cli) *cobra.Command {
	var f serveFlags
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			applyServeFlags(cmd, &c.cfg, f)
			return serve(cmd.Context(), c)
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&f.addr, "addr", ":8080", "HTTP listen address, e.g. :8080")
	fl.StringVar(&f.modelsDir, "models-dir", "~/models/llm", "Directory to scan for model files")
	fl.StringVar(&f.stateDir, "state-dir", "", "Directory for saved engine states (state endpoints disabled when empty)")
	fl.IntVar(&f.budgetMB, "vram-budget-mb", 0, "VRAM budget in MB for all instances (0=unlimited)")
	fl.IntVar(&f.marginMB, "vram-margin-mb", 0, "Reserved VRAM margin in MB to keep free")
	fl.StringVar(&f.defaultModel, "default-model", "", "Default model id when request omits model")
	fl.StringVar(&f.corsOrigins, "cors-origins", "", "Comma-separated allowed CORS origins; enables CORS when set")
	return cmd
}

// applyServeFlags fills cfg from flags: explicitly set flags always win,
// defaults only fill fields the config file left empty.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config, f serveFlags) {
	set := func(name string, empty bool) bool { return cmd.Flags().Changed(name) || empty }
	if set("addr", cfg.Addr == "") {
		cfg.Addr = f.addr
	}
	if set("models-dir", cfg.ModelsDir == "") {
		cfg.ModelsDir = f.modelsDir
	}
	if set("state-dir", cfg.StateDir == "") {
		cfg.StateDir = f.stateDir
	}
	if set("vram-budget-mb", cfg.VRAMBudgetMB == 0) {
		cfg.VRAMBudgetMB = f.budgetMB
	}
	if set("vram-margin-mb", cfg.VRAMMarginMB == 0) {
		cfg.VRAMMarginMB = f.marginMB
	}
	if set("default-model", cfg.DefaultModel == "") {
		cfg.DefaultModel = f.defaultModel
	}
	if cmd.Flags().Changed("cors-origins") {
		cfg.CORS.Origins = splitCSV(f.corsOrigins)
		cfg.CORS.Enabled = len(cfg.CORS.Origins) > 0
	}
}

func newManager(c *cli) (*manager.Manager, error) {
	cfg := c.cfg
	reg, err := registry.LoadDir(cfg.ModelsDir)
	if err != nil {
		return nil, err
	}
	mo := cfg.ModelOptions()
	po := cfg.PredictDefaults()
	return manager.NewWithConfig(manager.ManagerConfig{
		Registry:        reg,
		BudgetMB:        cfg.VRAMBudgetMB,
		MarginMB:        cfg.VRAMMarginMB,
		DefaultModel:    cfg.DefaultModel,
		MaxQueueDepth:   cfg.MaxQueueDepth,
		MaxWait:         cfg.MaxWait(),
		DrainTimeout:    cfg.DrainTimeout(),
		ModelOptions:    &mo,
		PredictDefaults: &po,
		StateDir:        cfg.StateDir,
		Publisher:       manager.NewLogPublisher(c.log),
		Logger:          &c.log,
	}), nil
}

func serve(parent context.Context, c *cli) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mgr, err := newManager(c)
	if err != nil {
		return err
	}
	cfg := c.cfg
	httpapi.SetLogger(c.log)
	httpapi.SetMaxBodyBytes(cfg.MaxBodyBytes)
	httpapi.SetInferTimeoutSeconds(cfg.InferTimeoutSeconds)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.Origins, cfg.CORS.Methods, cfg.CORS.Headers)
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		c.log.Info().Str("addr", cfg.Addr).Str("models_dir", cfg.ModelsDir).Int("models", len(mgr.ListModels())).Msg("llamad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if cfg.DefaultModel != "" {
		go func() {
			if err := mgr.EnsureInstance(ctx, cfg.DefaultModel); err != nil {
				c.log.Warn().Str("model", cfg.DefaultModel).Err(err).Msg("default model warmup failed")
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != nil {
			_ = mgr.Close()
			return err
		}
	case <-ctx.Done():
	}

	c.log.Info().Msg("shutting down")
	// Stop in-flight generations first so Shutdown does not wait on them.
	cancelBase()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		c.log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return mgr.Close()
}
