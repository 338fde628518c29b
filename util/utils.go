package util

import (
	"log"
	"os"
	"path/filepath"
)

// GetAbsolutePath resolves a path relative to the current working
// directory.
func GetAbsolutePath(relativePath string) string {
	root, err := os.Getwd()
	if err != nil {
		log.Fatal(err)
	}
	return filepath.Join(root, relativePath)
}

// EnvOr returns the environment variable's value, or fallback when it
// is unset or empty.
func EnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
