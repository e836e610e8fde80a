package config

import (
	"os"
	"path/filepath"
)

const DefaultBinary = "3seq"

type Config struct {
	DataDir           string
	DBPath            string
	UserProfileDir    string
	ProjectProfileDir string

	// WorkDir is where per-run working directories are created. Empty
	// means the system temporary directory.
	WorkDir string

	// Binary is the 3seq executable, looked up on PATH when not absolute.
	Binary string

	// PValueTable is the default p-value lookup table.
	PValueTable string
}

func New() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dataDir := getEnv("GO3SEQ_DATA_DIR", filepath.Join(homeDir, ".go3seq"))

	c := &Config{
		DataDir:           dataDir,
		DBPath:            filepath.Join(dataDir, "go3seq.db"),
		UserProfileDir:    filepath.Join(dataDir, "profiles"),
		ProjectProfileDir: ".go3seq/profiles",
		WorkDir:           getEnv("GO3SEQ_WORK_DIR", ""),
		Binary:            getEnv("GO3SEQ_BINARY", DefaultBinary),
		PValueTable:       getEnv("GO3SEQ_PVALUE_TABLE", ""),
	}

	return c, nil
}

func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0755); err != nil {
		return err
	}
	if err := os.MkdirAll(c.UserProfileDir, 0755); err != nil {
		return err
	}
	return nil
}

func (c *Config) ProfileDirs() []string {
	return []string{c.ProjectProfileDir, c.UserProfileDir}
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
