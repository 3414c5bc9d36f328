// Package config resolves tool settings from an optional HCL file, the
// environment, and command-line flags (applied by cmd, highest precedence).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Environment overrides, useful for keeping credentials out of config files.
const (
	EnvDSN   = "BEAMSYNC_DB_DSN"
	EnvToken = "BEAMSYNC_SCHEDULE_TOKEN"
)

// Config is everything beamsync reads from its config file.
type Config struct {
	DBDSN          string   `hcl:"db_dsn,optional"`
	SQLitePath     string   `hcl:"sqlite_path,optional"`
	ScheduleURL    string   `hcl:"schedule_url,optional"`
	ScheduleToken  string   `hcl:"schedule_token,optional"`
	Beamline       string   `hcl:"beamline,optional"`
	Run            string   `hcl:"run,optional"`
	TerminalSuffix string   `hcl:"terminal_suffix,optional"`
	Extensions     []string `hcl:"extensions,optional"`
	MaxDepth       int      `hcl:"max_depth,optional"`
}

// Default returns the settings a bare invocation starts from: XRF mapping
// conventions (.mda scan directories) and a shallow walk.
func Default() Config {
	return Config{
		TerminalSuffix: ".mda",
		Extensions:     []string{".mda"},
		MaxDepth:       2,
	}
}

// Load reads the config file at path, or the first of ./beamsync.hcl and
// ~/.config/beamsync/config.hcl when path is empty. An explicitly named
// file must exist; when searching, no file at all just means defaults.
// Environment overrides are applied last.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = firstExisting(candidatePaths())
	}
	if path != "" {
		if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if dsn := os.Getenv(EnvDSN); dsn != "" {
		cfg.DBDSN = dsn
	}
	if tok := os.Getenv(EnvToken); tok != "" {
		cfg.ScheduleToken = tok
	}
	return cfg, nil
}

func candidatePaths() []string {
	paths := []string{"beamsync.hcl"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "beamsync", "config.hcl"))
	}
	return paths
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
