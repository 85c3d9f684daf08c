package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-librarian/librarian/internal/config"
)

// DefaultLogDir returns the default log directory, nested under the
// same cache root as the index DB and downloaded models.
func DefaultLogDir() string {
	return filepath.Join(config.GetCacheDir(), "logs")
}

// DefaultLogPath returns the default log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "librarian.log")
}

// FindLogFile locates the log file to view: explicit if given, else the
// default path. Returns an error if neither exists.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	defaultPath := DefaultLogPath()
	if _, err := os.Stat(defaultPath); err == nil {
		return defaultPath, nil
	}

	return "", fmt.Errorf("no log file found. Run a command with --debug first.\nExpected at: %s", defaultPath)
}

// EnsureLogDir creates the log directory if it doesn't exist.
func EnsureLogDir() error {
	return os.MkdirAll(DefaultLogDir(), 0o755)
}
