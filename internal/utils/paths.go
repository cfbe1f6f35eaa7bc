// Package utils contains utility types for logging and filesystem path
// management used throughout fleetmon.
package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths resolves and manages filesystem locations used by fleetmon.
type Paths struct {
	RootPath string `json:"root_path"`
}

// NewPaths constructs Paths rooted at the specified directory.
func NewPaths(rootPath string) *Paths {
	return &Paths{RootPath: rootPath}
}

// LogsDir returns the global logs directory for fleetmon.
func (p *Paths) LogsDir() string {
	return filepath.Join(p.RootPath, "logs")
}

// ConfigDir returns the application configuration directory.
func (p *Paths) ConfigDir() string {
	return filepath.Join(p.RootPath, "config")
}

// DataDir returns the directory holding the fleet database.
func (p *Paths) DataDir() string {
	return filepath.Join(p.RootPath, "data")
}

// DatabaseFile returns the path to the sqlite fleet database.
func (p *Paths) DatabaseFile() string {
	return filepath.Join(p.DataDir(), "fleetmon.db")
}

// LogFile returns the main fleetmon log file path.
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogsDir(), "fleetmon.log")
}

// AlertLogFile returns the path to the alert dispatch log file.
func (p *Paths) AlertLogFile() string {
	return filepath.Join(p.LogsDir(), "alerts.log")
}

// CheckRoot verifies that core directories exist under the root path.
func (p *Paths) CheckRoot() bool {
	dirs := []string{p.RootPath, p.LogsDir(), p.ConfigDir(), p.DataDir()}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// DeployRoot creates the root directory structure (idempotent).
func (p *Paths) DeployRoot(logger *Logger) {
	mkdirLog := func(path, label string) {
		_ = os.MkdirAll(path, os.ModePerm)
		if logger != nil {
			logger.Write(fmt.Sprintf("Creating %s path: %s", label, path))
		}
	}

	mkdirLog(p.RootPath, "root")
	mkdirLog(p.LogsDir(), "logs")
	mkdirLog(p.ConfigDir(), "config")
	mkdirLog(p.DataDir(), "data")
}
