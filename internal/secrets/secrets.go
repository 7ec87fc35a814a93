// Package secrets stores credentials (currently only database passwords) in
// a 0600 JSON file under the user config directory, keyed by name.
package secrets

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	configFolder = "stream-transcriber"
	passwordFile = ".db_password.json"
)

func passwordPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config dir: %w", err)
	}
	return filepath.Join(dir, configFolder, passwordFile), nil
}

// Set stores password under key, creating the secrets file if needed.
func Set(key, password string) error {
	path, err := passwordPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create secrets dir: %w", err)
	}

	passwords := map[string]string{}
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		if err := json.Unmarshal(data, &passwords); err != nil {
			return fmt.Errorf("failed to parse secrets file: %w", err)
		}
	}

	passwords[key] = password

	data, err := json.Marshal(passwords)
	if err != nil {
		return fmt.Errorf("failed to encode secrets: %w", err)
	}

	// Write to a sibling temp file and rename so a crash cannot leave a
	// truncated secrets file behind.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace secrets file: %w", err)
	}
	return nil
}

// Get returns the password stored under key.
func Get(key string) (string, error) {
	path, err := passwordPath()
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read secrets file: %w", err)
	}

	passwords := map[string]string{}
	if err := json.Unmarshal(data, &passwords); err != nil {
		return "", fmt.Errorf("failed to parse secrets file: %w", err)
	}

	password, ok := passwords[key]
	if !ok {
		return "", fmt.Errorf("no password stored under key %q", key)
	}
	return password, nil
}
