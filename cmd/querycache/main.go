package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/goliatone/go-repository-query/internal/config"
)

var (
	envFlag    string
	configDirs []string
)

var rootCmd = &cobra.Command{
	Use:   "querycache",
	Short: "Cached query API over a relational database",
	Long: `querycache serves the registered entities over HTTP with a
where/sort/select/include/skip/take query language and caches the shaped
results until their TTL runs out or a write touches them.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&envFlag, "env", "e", "dev", "Environment to use, reads .env.<env> when present")
	rootCmd.PersistentFlags().StringSliceVar(&configDirs, "config-dir", []string{"."}, "Directories searched for the env file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	v, err := config.New(envFlag, configDirs...)
	if err != nil {
		return nil, err
	}
	return config.Load(v)
}
