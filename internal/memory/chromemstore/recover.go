package chromemstore

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

// chromem names collection directories by the first 8 hex chars of a hash.
var collectionDirPattern = regexp.MustCompile(`^[a-f0-9]{8}$`)

// metadataFile is the per-collection metadata written by chromem.
const metadataFile = "00000000.gob"

// openResilient opens a persistent DB. When a collection lost its metadata
// file the collection is moved to .quarantine and the load is retried.
func openResilient(path string, compress bool, logger *zap.Logger) (*chromem.DB, error) {
	db, err := chromem.NewPersistentDB(path, compress)
	if err == nil {
		return db, nil
	}
	if !strings.Contains(err.Error(), "collection metadata file not found") {
		return nil, err
	}

	corrupt, findErr := findCorrupt(path, logger)
	if findErr != nil || len(corrupt) == 0 {
		return nil, err
	}

	quarantine := filepath.Join(path, ".quarantine")
	if err := os.MkdirAll(quarantine, 0o755); err != nil {
		return nil, fmt.Errorf("creating quarantine: %w", err)
	}
	for _, dir := range corrupt {
		logger.Warn("quarantining corrupt collection", zap.String("collection_dir", dir))
		if err := os.Rename(filepath.Join(path, dir), filepath.Join(quarantine, dir)); err != nil {
			logger.Error("failed to quarantine collection", zap.String("collection_dir", dir), zap.Error(err))
		}
	}

	db, err = chromem.NewPersistentDB(path, compress)
	if err != nil {
		return nil, err
	}
	logger.Info("chromem loaded after quarantine", zap.Int("quarantined", len(corrupt)))
	return db, nil
}

// findCorrupt lists collection directories holding documents but no
// metadata file.
func findCorrupt(path string, logger *zap.Logger) ([]string, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}

	var corrupt []string
	for _, entry := range entries {
		if !entry.IsDir() || !collectionDirPattern.MatchString(entry.Name()) {
			continue
		}
		dir := filepath.Join(path, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, metadataFile)); !os.IsNotExist(err) {
			continue
		}
		files, err := os.ReadDir(dir)
		if err != nil {
			logger.Warn("failed to read collection directory", zap.String("collection_dir", entry.Name()), zap.Error(err))
			continue
		}
		for _, f := range files {
			if !f.IsDir() && strings.HasSuffix(f.Name(), ".gob") {
				corrupt = append(corrupt, entry.Name())
				break
			}
		}
	}
	return corrupt, nil
}
