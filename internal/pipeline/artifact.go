package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	dirPerm          = 0o750
	filePerm         = 0o600
	timestampLayout  = "20060102_150405"
	speechFileFormat = "ai_tts_%s.mp3"
)

// WriteArtifact writes data to dir/name, creating dir when needed, and returns the path.
func WriteArtifact(dir, name string, data []byte) (string, error) {
	err := os.MkdirAll(dir, dirPerm)
	if err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	path := filepath.Join(dir, name)

	err = os.WriteFile(path, data, filePerm)
	if err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	return path, nil
}

// SpeechFileName names a synthesised clip after its creation time.
func SpeechFileName(now time.Time) string {
	return fmt.Sprintf(speechFileFormat, now.Format(timestampLayout))
}

// Timestamp formats now the way output files and run directories are named.
func Timestamp(now time.Time) string {
	return now.Format(timestampLayout)
}
