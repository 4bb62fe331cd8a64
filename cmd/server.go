package cmd

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/taskterm/taskterm/pkg/cluster"
	"github.com/taskterm/taskterm/pkg/config"
	"github.com/taskterm/taskterm/pkg/gateway"
	"github.com/taskterm/taskterm/pkg/sandbox"
	"github.com/taskterm/taskterm/pkg/session"
)

var (
	port    string
	cfg     string
	verbose bool
)

var ServerCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the taskterm server",
	Long:  "Start the HTTP server exposing interactive task terminals and sandbox browsing",
	Run:   runServer,
}

func init() {
	ServerCmd.Flags().StringVarP(&port, "port", "p", "8080", "Port to listen on")
	ServerCmd.Flags().StringVarP(&cfg, "config", "c", "config.json", "Configuration file path")
	ServerCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	// Bind flags to viper
	if err := viper.BindPFlag("port", ServerCmd.Flags().Lookup("port")); err != nil {
		log.Printf("Failed to bind port flag: %v", err)
	}
	if err := viper.BindPFlag("config", ServerCmd.Flags().Lookup("config")); err != nil {
		log.Printf("Failed to bind config flag: %v", err)
	}
	if err := viper.BindPFlag("verbose", ServerCmd.Flags().Lookup("verbose")); err != nil {
		log.Printf("Failed to bind verbose flag: %v", err)
	}
}

func runServer(command *cobra.Command, args []string) {
	if verbose {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	configData, err := config.LoadConfig(cfg)
	if err != nil {
		log.Printf("Failed to load config from %s, using defaults: %v", cfg, err)
		configData = config.DefaultConfig()
	}

	clusterClient := cluster.NewClient(configData.MasterURL)
	cache := sandbox.NewCache(clusterClient, clusterClient)
	registry := session.NewRegistry(configData.Launcher, configData.Session.MaxHistoryBytes)
	files := sandbox.NewFileClient()

	server := gateway.New(configData, cache, registry, files, verbose)

	// Start server in a goroutine
	go func() {
		log.Printf("Starting taskterm on port %s (master: %s)", port, configData.MasterURL)
		if err := server.Start(":" + port); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received, shutting down gracefully...")
	if err := server.Shutdown(25 * time.Second); err != nil {
		log.Printf("Shutdown finished with error: %v", err)
	}
}
