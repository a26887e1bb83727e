// Package sqlitepath resolves where the local SQLite databases live.
package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DatabaseFile holds conversations for the sqlite storage driver.
	DatabaseFile = "recall.db"

	// VectorsFile holds embeddings for the sqlite-vec vector store.
	VectorsFile = "vectors.db"
)

// ResolveSQLitePath returns the message database path: the override when
// set, else an existing database from a previous run, else a new file in
// configDir.
func ResolveSQLitePath(override, configDir string) (string, error) {
	return resolve(override, configDir, DatabaseFile)
}

// ResolveVectorPath is ResolveSQLitePath for the sqlite-vec database.
func ResolveVectorPath(override, configDir string) (string, error) {
	return resolve(override, configDir, VectorsFile)
}

func resolve(override, configDir, name string) (string, error) {
	if override != "" {
		return override, nil
	}

	for _, candidate := range candidates(name) {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if configDir == "" {
		return "", errors.New("could not place recall SQLite database; pass --sqlite")
	}
	return filepath.Join(configDir, name), nil
}

func candidates(name string) []string {
	out := []string{
		filepath.Join(".recall", name),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		out = append(out, filepath.Join(home, ".recall", name))
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		out = append([]string{filepath.Join(xdgHome, "recall", name)}, out...)
	}

	return out
}
