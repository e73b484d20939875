package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"golang.org/x/oauth2"
)

// tokenRelPath is the token file below the XDG state directory.
const tokenRelPath = "smart-env/auth.json"

// ErrNoToken is returned by LoadToken when no token has been saved.
var ErrNoToken = errors.New("not logged in to the plugin server")

// ErrTokenExpired is returned by TokenSource when the saved token has
// expired. It wraps ErrNoToken.
var ErrTokenExpired = fmt.Errorf("%w: saved token has expired", ErrNoToken)

// DefaultTokenPath returns the token file location in the XDG state
// directory, creating its parent directory.
func DefaultTokenPath() (string, error) {
	path, err := xdg.StateFile(tokenRelPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve token path: %w", err)
	}
	return path, nil
}

// LoadToken reads a saved token. A missing file returns ErrNoToken.
func LoadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoToken
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	tok := &oauth2.Token{}
	if err := json.Unmarshal(data, tok); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", path, err)
	}
	if tok.AccessToken == "" {
		return nil, ErrNoToken
	}
	return tok, nil
}

// SaveToken writes tok to path, readable by the current user only.
func SaveToken(path string, tok *oauth2.Token) error {
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	return nil
}

// TokenSource returns a source for the token saved at path. An expired
// token yields ErrTokenExpired, both here and from the source's Token.
func TokenSource(path string) (oauth2.TokenSource, error) {
	tok, err := LoadToken(path)
	if err != nil {
		return nil, err
	}
	if !tok.Valid() {
		return nil, ErrTokenExpired
	}
	return savedTokenSource{tok: tok}, nil
}

// savedTokenSource serves a stored token until it expires.
type savedTokenSource struct {
	tok *oauth2.Token
}

func (s savedTokenSource) Token() (*oauth2.Token, error) {
	if !s.tok.Valid() {
		return nil, ErrTokenExpired
	}
	return s.tok, nil
}
