package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// Processor result files land as Batch_<id>_<yyyymmddhhmmss>_result.csv.
var batchFilePattern = regexp.MustCompile(`(?i)^Batch_(\d+)_(\d{14})_result\.csv$`)

// BatchFile is a result CSV discovered in the drop directory.
type BatchFile struct {
	Path      string
	BatchID   string
	Timestamp string
}

// ParseBatchFilename extracts the batch id and timestamp from a result
// filename. Returns false when the name does not match the pattern.
func ParseBatchFilename(name string) (batchID, timestamp string, ok bool) {
	m := batchFilePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// ScanDir lists the batch result files in dir, oldest first, so batches are
// always ingested in processor order.
func ScanDir(dir string) ([]BatchFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read drop dir: %w", err)
	}

	files := []BatchFile{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		batchID, ts, ok := ParseBatchFilename(entry.Name())
		if !ok {
			continue
		}
		files = append(files, BatchFile{
			Path:      filepath.Join(dir, entry.Name()),
			BatchID:   batchID,
			Timestamp: ts,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].Timestamp < files[j].Timestamp
	})
	return files, nil
}
