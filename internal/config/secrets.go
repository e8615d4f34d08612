package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

func secretsFilePath() string {
	return filepath.Join(xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share")), "sitebot", "secrets.json")
}

// fileSecrets reads API keys from a flat {"account": "value"} JSON file
// readable only by the owner.
type fileSecrets struct {
	path string
}

func (f fileSecrets) Get(account string) (string, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("secrets file not available: %w", err)
	}
	var secrets map[string]string
	if err := json.Unmarshal(data, &secrets); err != nil {
		return "", fmt.Errorf("parsing secrets file: %w", err)
	}
	val, ok := secrets[account]
	if !ok {
		return "", fmt.Errorf("account %q not found", account)
	}
	return val, nil
}
