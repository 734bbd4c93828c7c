package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	Execute()
}

// NewApp wires the store, renderer, contact flow and admin pages.
func NewApp(cfg Config, db *DB, logger *zap.Logger) (*App, error) {
	renderer, err := NewRenderer(cfg.Templates)
	if err != nil {
		return nil, err
	}
	tracker, err := NewTracker(db, logger)
	if err != nil {
		return nil, err
	}
	store := NewStore(NewSource(cfg.Data.Source, nil), logger)

	var notifier Notifier
	if cfg.SMTPEnabled() {
		notifier = NewSMTPNotifier(cfg.SMTP)
	}
	submitter := &EndpointSubmitter{
		Endpoint: cfg.Contact.Endpoint,
		Client:   &http.Client{Timeout: cfg.Contact.Timeout},
	}
	contact := NewContactService(submitter, notifier, tracker, cfg.Site.ContactEmail, logger)

	admin, err := NewAdmin(cfg.Admin, tracker, store, cfg.Site.ContactEmail, logger)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:      cfg,
		store:    store,
		renderer: renderer,
		contact:  contact,
		tracker:  tracker,
		admin:    admin,
		logger:   logger,
		now:      time.Now,
	}, nil
}

func newRouter(app *App) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(app.logger), app.tracker.Middleware())
	r.SetHTMLTemplate(app.renderer.Template())

	r.Static("/images", "./images")
	r.Static("/static", "./static")

	// Home page with both grids
	r.GET("/", app.index)

	// HTMX fragments
	r.GET("/fragments/featured", app.featuredFragment)
	r.GET("/fragments/work", app.workFragment)
	r.GET("/work/:id", app.openModal)
	r.GET("/modal/close", app.closeModal)

	r.POST("/contact", app.submitContact)
	r.GET("/healthz", app.healthz)

	app.admin.RegisterRoutes(r)
	return r
}

func serve(cfg Config) error {
	switch cfg.Server.Mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		gin.SetMode(cfg.Server.Mode)
	default:
		return fmt.Errorf("invalid server mode %q", cfg.Server.Mode)
	}

	logger, err := NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	db, err := OpenDB(cfg.DB.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	app, err := NewApp(cfg, db, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A failed load is logged by the store and leaves the grids empty.
	_ = app.store.Reload(ctx)
	if cfg.Data.Watch {
		go func() {
			if err := app.store.Watch(ctx); err != nil {
				logger.Warn("portfolio watcher stopped", zap.Error(err))
			}
		}()
	}
	go func() {
		if _, err := app.tracker.Cleanup(ctx); err != nil {
			logger.Error("error cleaning up old records", zap.Error(err))
		}
	}()

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           newRouter(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return srv.Shutdown(shutdownCtx)
}
