package config

import (
	"os"
	"path/filepath"
)

// DefaultDatabasePath returns the default path for the database file
func DefaultDatabasePath() string {
	exePath, err := os.Executable()
	if err != nil {
		return "images.db"
	}
	return filepath.Join(filepath.Dir(exePath), "images.db")
}

// DefaultCacheDir returns the directory snapshots are kept in by default
func DefaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ".imagedupes"
	}
	return filepath.Join(dir, "imagedupes")
}
