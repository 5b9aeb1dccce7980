package resolver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	securejoin "github.com/cyphar/filepath-securejoin"
)

const signatureSuffix = ".sig"

// LocalDir resolves locators to files under Root.
type LocalDir struct {
	// Root is the directory that holds component binaries.
	Root string
}

// Name implements Source.
func (l LocalDir) Name() string {
	return "local-dir"
}

// Fetch implements Source. The whole file is read and digested on every call;
// the resolver decides whether that is a cache hit.
func (l LocalDir) Fetch(ctx context.Context, locator string, _ *Artifact) (Fetched, error) {
	if err := ctx.Err(); err != nil {
		return Fetched{}, err
	}
	path, err := l.Path(locator)
	if err != nil {
		return Fetched{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Fetched{}, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return Fetched{}, fmt.Errorf("read %s: %w", path, err)
	}

	sig, err := os.ReadFile(path + signatureSuffix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Fetched{}, fmt.Errorf("read signature %s: %w", path+signatureSuffix, err)
	}
	return Fetched{Bytes: data, Signature: sig}, nil
}

// Path maps locator to a file under Root. Absolute locators and locators that
// climb out of Root are rejected; symlinks are resolved inside Root.
func (l LocalDir) Path(locator string) (string, error) {
	name := strings.TrimSpace(locator)
	if name == "" {
		return "", errors.New("component locator is empty")
	}
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("component locator %q must be relative to the tool store", locator)
	}
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("component locator %q escapes the tool store", locator)
	}
	if !strings.HasSuffix(name, ".wasm") {
		name += ".wasm"
	}
	root := l.Root
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("tool store root: %w", err)
	}
	return securejoin.SecureJoin(abs, name)
}
