// Command admin runs maintenance tasks against the EcoWatch store.
package main

import (
	"fmt"
	"os"

	"github.com/EcoWatch/EcoWatch-Backend/internal/config"
	"github.com/EcoWatch/EcoWatch-Backend/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "EcoWatch maintenance commands",
	Long: `Maintenance commands for the EcoWatch backend.

Configuration is read from the environment (and .env.local) exactly as the
server reads it; STORAGE_DRIVER=postgres targets the database.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(seedCmd, addUserCmd, purgeCmd)
}

// setup loads configuration and a logger for a command.
func setup() (config.Config, *zap.Logger, error) {
	_ = godotenv.Load(".env.local")
	cfg := config.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
