// Command migrate-gen generates SQL migration files for the keypool credentials table.
//
// Usage:
//
//	go run github.com/getpup/keypool-orchestrator/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/keypool-orchestrator/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/keypool-orchestrator/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/keypool-orchestrator/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/keypool-orchestrator/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize the table name:
//
//	go run github.com/getpup/keypool-orchestrator/cmd/migrate-gen -table api_keys -output migrations
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/keypool-orchestrator/pkg/migrations"
)

func main() {
	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", "migrations", "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		table          = flag.String("table", "keypool_credentials", "Name of credentials table")
	)

	flag.Parse()

	config := migrations.DefaultConfig()
	config.OutputFolder = *outputFolder
	config.CredentialsTable = *table

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	if err := migrations.Generate(*adapter, &config); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", *adapter, config.OutputFolder, config.OutputFilename)
}
