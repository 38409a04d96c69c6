package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"wastesort/internal/model"
	"wastesort/internal/repository"
)

var snapshotName = regexp.MustCompile(`^(\d{6})\.jpg$`)

// Backfill indexes snapshot files already present in dir that are not in
// the database yet. It returns the number of added records.
func Backfill(dir, sessionID string, repo repository.SnapshotRepository) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	added := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := snapshotName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		existing, err := repo.GetByPath(path)
		if err != nil {
			return added, err
		}
		if existing != nil {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return added, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		index, _ := strconv.ParseInt(m[1], 10, 64)

		if _, err := repo.Insert(&model.Snapshot{
			SessionID:  sessionID,
			Index:      index,
			Filename:   entry.Name(),
			FilePath:   path,
			FileSize:   info.Size(),
			CapturedAt: info.ModTime(),
		}); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}
