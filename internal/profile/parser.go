package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/acorg/go3seq/internal/models"
	"gopkg.in/yaml.v3"
)

func Parse(path string) (*models.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var profile models.Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to parse profile YAML: %w", err)
	}

	// Relative paths in a profile are relative to the profile itself
	dir := filepath.Dir(path)
	profile.PValueTable = resolve(dir, profile.PValueTable)
	profile.Filter = resolve(dir, profile.Filter)

	return &profile, nil
}

func resolve(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func LoadAll(dirs []string) (map[string]*models.Profile, error) {
	profiles := make(map[string]*models.Profile)

	for _, dir := range dirs {
		if err := loadFromDir(dir, profiles); err != nil {
			// Skip directories that don't exist
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
	}

	return profiles, nil
}

func loadFromDir(dir string, profiles map[string]*models.Profile) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}

		path := filepath.Join(dir, name)
		profile, err := Parse(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}

		// Use profile name from file, or filename without extension
		if profile.Name == "" {
			profile.Name = strings.TrimSuffix(strings.TrimSuffix(name, ".yaml"), ".yml")
		}

		// Earlier directories win
		if _, ok := profiles[profile.Name]; !ok {
			profiles[profile.Name] = profile
		}
	}

	return nil
}

func Validate(profile *models.Profile) error {
	if profile.Name == "" {
		return fmt.Errorf("profile must have a name")
	}

	if profile.PValueTable == "" {
		return fmt.Errorf("profile %q must set pvalue_table", profile.Name)
	}

	switch profile.Threshold.(type) {
	case nil, string, int, float64:
	default:
		return fmt.Errorf("profile %q: t must be a number or a string, got %T", profile.Name, profile.Threshold)
	}

	if profile.OutputPrefix != "" && strings.ContainsRune(profile.OutputPrefix, filepath.Separator) {
		return fmt.Errorf("profile %q: output_prefix must not contain a path separator", profile.Name)
	}

	return nil
}
