package capture

import (
	"fmt"
	"os"
	"path/filepath"
)

// Layout maps captures to files under Root:
//
//	<root>/<site>/<account>/<account>_<purpose>.png
type Layout struct {
	Root string
}

// Dir returns the output directory for an account, creating it if needed.
func (l Layout) Dir(site, account string) (string, error) {
	dir := filepath.Join(l.Root, site, account)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	return dir, nil
}

// File returns the path for a capture, creating its directory.
func (l Layout) File(site, account, purpose string) (string, error) {
	dir, err := l.Dir(site, account)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName(account, purpose)), nil
}

// Part returns the path for the n-th (1-based) page of a paginated capture.
func (l Layout) Part(site, account, purpose string, n int) (string, error) {
	return l.File(site, account, fmt.Sprintf("%s_part_%d", purpose, n))
}

// FileName is the base name of a capture.
func FileName(account, purpose string) string {
	return fmt.Sprintf("%s_%s.png", account, purpose)
}
