package config

import (
	"os"
	"path/filepath"
)

func GetRuntimePath() string {
	path := os.Getenv("RECOMATE_RUNTIME_PATH")
	if path == "" {
		path = ".recomate"
	}

	if !filepath.IsAbs(path) {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, path)
	}
	return path
}

func GetEnvPath() string {
	return filepath.Join(GetRuntimePath(), ".env")
}
