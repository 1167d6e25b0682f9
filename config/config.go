// Package config resolves server settings from flags with environment
// fallbacks.
package config

import (
	"errors"
	"flag"
	"os"
	"strconv"
)

type Config struct {
	Port        int
	DataDir     string
	CatalogPath string
	MaxUploadMB int
	Debug       bool
}

// ParseFlags reads settings from args, falling back to environment
// variables and then defaults.
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("pagemarkd", flag.ContinueOnError)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DataDir, "data", "", "Directory for document revisions")
	fs.StringVar(&cfg.CatalogPath, "catalog", "", "SQLite catalog path (empty keeps the catalog in memory)")
	fs.IntVar(&cfg.MaxUploadMB, "max-upload", 0, "Upload size limit in MB")
	fs.BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.Port == 0 {
		if portStr := os.Getenv("PORT"); portStr != "" {
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return Config{}, errors.New("invalid PORT env variable")
			}
			cfg.Port = port
		} else {
			cfg.Port = 8080
		}
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return Config{}, errors.New("port out of range")
	}

	if cfg.DataDir == "" {
		cfg.DataDir = os.Getenv("PAGEMARK_DATA_DIR")
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}

	if cfg.CatalogPath == "" {
		cfg.CatalogPath = os.Getenv("PAGEMARK_CATALOG")
	}

	if cfg.MaxUploadMB == 0 {
		if v := os.Getenv("PAGEMARK_MAX_UPLOAD_MB"); v != "" {
			mb, err := strconv.Atoi(v)
			if err != nil {
				return Config{}, errors.New("invalid PAGEMARK_MAX_UPLOAD_MB env variable")
			}
			cfg.MaxUploadMB = mb
		} else {
			cfg.MaxUploadMB = 100
		}
	}
	if cfg.MaxUploadMB < 1 {
		return Config{}, errors.New("upload limit must be at least 1 MB")
	}

	if !cfg.Debug && os.Getenv("PAGEMARK_DEBUG") == "1" {
		cfg.Debug = true
	}

	return cfg, nil
}
