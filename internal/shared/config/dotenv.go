package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// loadEnvFiles loads simple KEY=VALUE pairs from the given files if they exist.
// Variables already present in the environment win. Errors are ignored.
func loadEnvFiles(paths ...string) {
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, val, ok := strings.Cut(line, "=")
			if !ok {
				continue
			}
			setDefault(strings.TrimSpace(key), strings.Trim(strings.TrimSpace(val), `"`))
		}
		_ = f.Close()
	}
}

// loadYAMLDefaults reads a flat YAML mapping of env names to values,
// e.g. "PORT: 9090", and applies each entry as an environment default.
func loadYAMLDefaults(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	values := map[string]interface{}{}
	if err := yaml.Unmarshal(data, &values); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	for key, raw := range values {
		if raw == nil {
			continue
		}
		var val string
		switch v := raw.(type) {
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			val = strings.Join(parts, ",")
		default:
			val = fmt.Sprint(v)
		}
		setDefault(strings.ToUpper(strings.TrimSpace(key)), val)
	}
	return nil
}

func setDefault(key, val string) {
	if key == "" {
		return
	}
	if _, exists := os.LookupEnv(key); exists {
		return
	}
	os.Setenv(key, val)
}
