package main

import (
	"context"
	"embed"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"

	"github.com/tigerroll/solarback/internal/app"
	"github.com/tigerroll/solarback/pkg/support/logger"

	// Register the storage adapter factories.
	_ "github.com/tigerroll/solarback/pkg/storage/gcs"
	_ "github.com/tigerroll/solarback/pkg/storage/local"
)

// embeddedConfig embeds the content of the application's YAML configuration file.
// This file is used to load configuration at application startup.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

// journalMigrationsFS is an embedded file system containing the journal
// database migration files, bundled into the application binary.
//
//go:embed all:resources/migrations
var journalMigrationsFS embed.FS

// main is the entry point of the application.
// It manages startup, signal handling, and execution of the Fx container.
func main() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s <account-email>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	account := flag.Arg(0)
	if account == "" {
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handling for graceful shutdown (e.g., Ctrl+C)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Attempting to stop the sweep...", sig)
		cancel()
	}()

	// Get the path to the .env file from environment variables. Use ".env" as default if not set.
	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	app.RunApplication(ctx, account, envFilePath, embeddedConfig, journalMigrationsFS)
	os.Exit(0)
}
