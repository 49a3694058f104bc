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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/phillip/haojiu-go/config"
	"github.com/phillip/haojiu-go/controllers"
	"github.com/phillip/haojiu-go/logger"
	"github.com/phillip/haojiu-go/routes"
	"github.com/phillip/haojiu-go/seed"
	"github.com/phillip/haojiu-go/services"
	"github.com/phillip/haojiu-go/store"
	"github.com/phillip/haojiu-go/utils"
)

var (
	seedFile    string
	seedOnServe bool

	rootCmd = &cobra.Command{
		Use:           "haojiu",
		Short:         "好揪 event and challenge API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and live updates",
		RunE:  runServe,
	}

	seedCmd = &cobra.Command{
		Use:   "seed",
		Short: "Load demo users, events and challenges",
		RunE:  runSeed,
	}
)

func init() {
	serveCmd.Flags().BoolVar(&seedOnServe, "seed", false, "load the built-in demo data before serving")
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "YAML seed file (defaults to the built-in demo data)")
	rootCmd.AddCommand(serveCmd, seedCmd)
}

// setup loads config, starts logging and opens the configured store.
func setup(ctx context.Context) (*config.Config, store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(cfg.Env, cfg.LogDir); err != nil {
		return nil, nil, err
	}

	if cfg.StoreDriver == "memory" {
		logger.Warn.Println("using the in-memory store, data is lost on exit")
		return cfg, store.NewMemory(), nil
	}

	if err := cfg.Connect(ctx); err != nil {
		return nil, nil, err
	}
	s := store.NewMongo(cfg.MongoClient, cfg.DBName)
	if err := s.EnsureIndexes(ctx); err != nil {
		cfg.Disconnect(ctx)
		return nil, nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info.Printf("connected to MongoDB database %s", cfg.DBName)
	return cfg, s, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, s, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cfg.Disconnect(context.Background())

	if seedOnServe {
		f, err := seed.Load("")
		if err != nil {
			return err
		}
		if err := seed.Apply(ctx, s, f, time.Now()); err != nil {
			return err
		}
	}

	// Optional integrations stay nil unless configured.
	var (
		uploader utils.Uploader
		posters  utils.PosterGenerator
		notifier services.RequestNotifier
	)
	if cfg.CloudinaryEnabled() {
		cld, err := utils.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			return err
		}
		uploader = cld
	} else {
		logger.Warn.Println("Cloudinary not configured, uploads disabled")
	}
	if cfg.OpenAIAPIKey != "" {
		posters = utils.NewOpenAIPosters(cfg.OpenAIAPIKey)
	} else {
		logger.Warn.Println("OPENAI_API_KEY not set, poster generation disabled")
	}
	if cfg.MailEnabled() {
		notifier = utils.NewMailer(cfg.ZeptoAPIURL, cfg.ZeptoAPIKey, cfg.EmailFrom)
	}

	env := controllers.NewEnv(cfg, s, uploader, posters, notifier)
	if err := env.Hub.Start(ctx); err != nil {
		return fmt.Errorf("start live hub: %w", err)
	}
	defer env.Hub.Close()

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	routes.SetupRoutes(r, env)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runSeed(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	cfg, s, err := setup(ctx)
	if err != nil {
		return err
	}
	defer cfg.Disconnect(context.Background())

	f, err := seed.Load(seedFile)
	if err != nil {
		return err
	}
	return seed.Apply(ctx, s, f, time.Now())
}
