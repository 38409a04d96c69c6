package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"wastesort/internal/repository/sqlite"
	"wastesort/internal/service/storage"
)

func main() {
	recordDir := flag.String("record", "recordings", "Directory containing NNNNNN.jpg snapshots")
	dbPath := flag.String("db", "data/wastesort.db", "Database path")
	session := flag.String("session", "", "Session id for back-filled snapshots (default: backfill-<dir name>)")
	flag.Parse()

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	version, err := db.Version()
	if err != nil {
		log.Fatalf("Failed to read schema version: %v", err)
	}
	fmt.Printf("Database %s is at schema version %d\n", *dbPath, version)

	if _, err := os.Stat(*recordDir); os.IsNotExist(err) {
		fmt.Printf("No recording directory at %s, nothing to back-fill\n", *recordDir)
		return
	}

	sessionID := *session
	if sessionID == "" {
		abs, err := filepath.Abs(*recordDir)
		if err != nil {
			abs = *recordDir
		}
		sessionID = "backfill-" + filepath.Base(abs)
	}

	fmt.Printf("Indexing snapshots from %s as session %s\n", *recordDir, sessionID)
	added, err := storage.Backfill(*recordDir, sessionID, sqlite.NewSnapshotRepository(db))
	if err != nil {
		log.Fatalf("Failed to back-fill snapshots: %v", err)
	}
	fmt.Printf("Indexed %d new snapshots\n", added)

	stats, err := sqlite.NewSnapshotRepository(db).GetStats()
	if err == nil {
		fmt.Printf("\nIndex statistics:\n")
		fmt.Printf("   Total snapshots: %d\n", stats.TotalSnapshots)
		fmt.Printf("   Total size: %d bytes\n", stats.TotalSizeBytes)
		for category, count := range stats.PerCategory {
			fmt.Printf("   %s: %d detections\n", category, count)
		}
	}
}
