package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

// maxSecretFileBytes bounds a single secret file.
const maxSecretFileBytes = 64 << 10

// FileSecretProvider resolves each key as a file path and returns the file
// content with surrounding whitespace trimmed. This is how Docker and
// Kubernetes mount secrets.
type FileSecretProvider struct {
	readFile func(string) ([]byte, error)
}

// NewFileSecretProvider creates a FileSecretProvider reading from the local
// filesystem.
func NewFileSecretProvider() *FileSecretProvider {
	return &FileSecretProvider{readFile: os.ReadFile}
}

// GetParametersBatch implements SecretProvider. Missing files are omitted;
// other read failures abort the batch.
func (p *FileSecretProvider) GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, path := range keys {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := p.readFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read secret file %s: %w", path, err)
		}
		if len(raw) > maxSecretFileBytes {
			return nil, fmt.Errorf("secret file %s exceeds %d bytes", path, maxSecretFileBytes)
		}
		result[path] = strings.TrimSpace(string(raw))
	}
	return result, nil
}
