package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// AppDirName names the per-user data directory
const AppDirName = "cookbooksync"

// ExpandPath expands ~ and environment variables in a configured path.
// A ~ in the middle of the path is left alone.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return path, nil
	}

	path = os.ExpandEnv(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if path == "~" {
		return homeDir, nil
	}
	return filepath.Join(homeDir, path[2:]), nil
}

// DataDir returns $XDG_DATA_HOME/cookbooksync, falling back to
// ~/.local/share/cookbooksync
func DataDir() (string, error) {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, AppDirName), nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", AppDirName), nil
}

// ResolveDataPath turns a configured file setting into a path. An empty
// setting uses defaultName, and a bare file name such as "sync.log" lands
// in DataDir. Anything with a directory part is only expanded.
func ResolveDataPath(path, defaultName string) (string, error) {
	expanded, err := ExpandPath(path)
	if err != nil {
		return "", err
	}
	if expanded == "" {
		expanded = defaultName
	}
	if expanded == "" || filepath.IsAbs(expanded) || filepath.Base(expanded) != expanded {
		return expanded, nil
	}

	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, expanded), nil
}
