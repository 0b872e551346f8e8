package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"closet_backup/config"
	"closet_backup/httputil"
	"closet_backup/logging"
	"closet_backup/scheduler"
	"closet_backup/services"
	"closet_backup/storage"
)

var (
	backupNow = flag.Bool("backup", false, "Run backup once and exit")
	closet    = flag.String("closet", "", "Back up only this closet (with -backup)")
	noDetails = flag.Bool("no-details", false, "Skip per-listing detail pages, save links only")
	debug     = flag.Bool("debug", false, "Dump raw feed responses to the output directory")
)

func main() {
	flag.Parse()
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	logFile, err := logging.Setup("backup.log")
	if err != nil {
		log.Printf("Warning: could not set up file logging: %v", err)
	} else {
		defer logFile.Close()
	}

	log.Println("Starting closet_backup...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *noDetails {
		cfg.Scraper.VisitDetails = false
	}

	if len(cfg.Closets) == 0 {
		log.Fatalf("No closets configured. Set CLOSET_USERNAME or add config/closets/*.yaml")
	}
	log.Printf("Loaded %d closet configs", len(cfg.Closets))
	for username, c := range cfg.Closets {
		log.Printf("  - %s (%s)", c.Name, username)
	}

	clients := httputil.NewClients()

	ctx := context.Background()

	// Object store: S3 (or compatible) when configured, local files otherwise.
	var store storage.ListingStore
	if cfg.S3.Enabled() {
		s3Store, err := storage.NewS3Store(ctx, cfg.S3)
		if err != nil {
			log.Fatalf("Failed to set up S3 store: %v", err)
		}
		store = s3Store
		log.Printf("Object store: s3://%s", cfg.S3.Bucket)
	} else {
		localStore, err := storage.NewLocalStore(cfg.OutputDir)
		if err != nil {
			log.Fatalf("Failed to set up local store: %v", err)
		}
		store = localStore
		log.Printf("Object store: local directory %s", cfg.OutputDir)
	}

	var archive *storage.PostgresStore
	if cfg.Postgres.URL != "" {
		archive, err = storage.NewPostgresStore(ctx, cfg.Postgres.URL)
		if err != nil {
			log.Fatalf("Failed to connect to Postgres: %v", err)
		}
		defer archive.Close()
		log.Printf("Connected to Postgres: %s", maskConnectionString(cfg.Postgres.URL))
	}

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open SQLite: %v", err)
	}
	defer sqliteStore.Close()
	log.Printf("SQLite database: %s", cfg.DBPath)

	backup := services.NewBackupService(cfg, clients, store, sqliteStore, archive)
	backup.Debug = *debug

	if *backupNow {
		if *closet != "" {
			c, ok := cfg.Closets[*closet]
			if !ok {
				log.Fatalf("Unknown closet %q", *closet)
			}
			if _, err := backup.RunCloset(ctx, c); err != nil {
				log.Fatalf("Backup failed: %v", err)
			}
		} else {
			backup.RunAll(ctx)
		}
		log.Println("Backup complete!")
		return
	}

	sched := scheduler.New(cfg, backup, sqliteStore)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	log.Println("Daemon running. Press Ctrl+C to stop.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")
	cancel()
	sched.Stop()
	log.Println("Goodbye!")
}

// maskConnectionString masks password in connection string for logging
func maskConnectionString(connStr string) string {
	// Simple mask - find :// and mask until @
	start := 0
	for i := 0; i < len(connStr)-3; i++ {
		if connStr[i:i+3] == "://" {
			start = i + 3
			break
		}
	}
	if start == 0 {
		return connStr
	}

	// Find : after user
	colonIdx := -1
	atIdx := -1
	for i := start; i < len(connStr); i++ {
		if connStr[i] == ':' && colonIdx == -1 {
			colonIdx = i
		}
		if connStr[i] == '@' {
			atIdx = i
			break
		}
	}

	if colonIdx > 0 && atIdx > colonIdx {
		return connStr[:colonIdx+1] + "****" + connStr[atIdx:]
	}
	return connStr
}
