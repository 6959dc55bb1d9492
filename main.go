package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"stockroom/internal/config"
	"stockroom/internal/database"
	"stockroom/internal/services"
	applogger "stockroom/pkg/logger"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile string
	cfg     *config.Config
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stockroom",
	Short: "Inventory product service",
	Long: `stockroom serves the product listing and the create, edit, stock
adjustment and delete operations over HTTP.

Run without a subcommand to start the server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(envFile)
		if err != nil {
			return err
		}
		logger, err = applogger.New(cfg.Log.Level, cfg.Log.Format)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE:  runMigrate,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo products",
	RunE:  runSeed,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.AddCommand(serveCmd, migrateCmd, seedCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.close(); err != nil {
			logger.Error("Error releasing backends", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.run(ctx, cfg.App.Port)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	db, err := database.Open(database.Config{Driver: cfg.Database.Driver, DSN: cfg.Database.DSN}, logger)
	if err != nil {
		return err
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		return err
	}
	logger.Info("Schema is up to date", zap.String("driver", cfg.Database.Driver))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	srv, err := newServer(cfg, logger)
	if err != nil {
		return err
	}
	defer srv.close()

	created, err := seedProducts(srv.products, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d products\n", created)
	return nil
}

// seedProducts inserts the demo catalogue through the mutation service so
// validation and listing invalidation apply as for any other create.
func seedProducts(products *services.ProductService, logger *zap.Logger) (int, error) {
	demo := []services.ProductInput{
		{Name: "Laptop", Description: "High performance laptop", Price: decimal.NewFromInt(1200), Stock: 10},
		{Name: "Keyboard", Description: "Mechanical keyboard", Price: decimal.NewFromInt(75), Stock: 25},
		{Name: "Mouse", Description: "Ergonomic wireless mouse", Price: decimal.NewFromInt(25), Stock: 50},
	}

	created := 0
	for _, input := range demo {
		product, err := products.CreateProduct(input)
		if err != nil {
			return created, fmt.Errorf("failed to seed product %s: %w", input.Name, err)
		}
		logger.Info("Seeded product", zap.String("name", product.Name), zap.String("product_id", product.ID))
		created++
	}
	return created, nil
}
