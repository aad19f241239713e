package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/oauth2"

	"spotrip/internal/fileutil"
)

const lastUserFile = "last_user"

// LoadToken reads a stored OAuth token. A missing file returns (nil, nil).
func LoadToken(path string) (*oauth2.Token, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("parse token %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("token %s holds no credentials", path)
	}
	return &tok, nil
}

// SaveToken persists tok with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	if tok == nil || strings.TrimSpace(path) == "" {
		return nil
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	return fileutil.WriteFileAtomic(path, data, 0o600)
}

// LoadLastUser returns the account stored by the previous login, or "".
func LoadLastUser(settingsDir string) string {
	data, err := os.ReadFile(filepath.Join(settingsDir, lastUserFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SaveLastUser remembers user for --last.
func SaveLastUser(settingsDir, user string) error {
	if strings.TrimSpace(user) == "" {
		return nil
	}
	return fileutil.WriteFileAtomic(filepath.Join(settingsDir, lastUserFile), []byte(user+"\n"), 0o600)
}
