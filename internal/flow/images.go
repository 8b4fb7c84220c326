package flow

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ChainResolver tries a small ordered list of candidate sources and returns
// the first that resolves. Configuration decides the order (local-first or
// remote-first).
type ChainResolver struct {
	sources []ImageResolver
}

func NewChainResolver(sources ...ImageResolver) *ChainResolver {
	return &ChainResolver{sources: sources}
}

func (r *ChainResolver) Resolve(ctx context.Context, ref string) (string, error) {
	var errs []error
	for _, source := range r.sources {
		resolved, err := source.Resolve(ctx, ref)
		if err == nil {
			return resolved, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return "", fmt.Errorf("no image sources configured")
	}
	return "", errors.Join(errs...)
}

// LocalImages resolves references against a directory of stored variants.
type LocalImages struct {
	dir string
}

func NewLocalImages(dir string) *LocalImages {
	return &LocalImages{dir: dir}
}

func (l *LocalImages) Resolve(_ context.Context, ref string) (string, error) {
	path := filepath.Join(l.dir, filepath.Clean("/"+ref))
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("local image %s: %w", ref, err)
	}
	return path, nil
}

// RemoteImages resolves references against a base URL, optionally probing
// with a HEAD request so that dead links fall back to the next source.
type RemoteImages struct {
	baseURL string
	client  *http.Client
}

// NewRemoteImages builds a remote source. probe enables the HEAD check.
func NewRemoteImages(baseURL string, probe bool) *RemoteImages {
	r := &RemoteImages{baseURL: strings.TrimSuffix(baseURL, "/")}
	if probe {
		r.client = &http.Client{Timeout: 3 * time.Second}
	}
	return r
}

func (r *RemoteImages) Resolve(ctx context.Context, ref string) (string, error) {
	url := r.baseURL + "/" + strings.TrimPrefix(ref, "/")
	if r.client == nil {
		return url, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return "", fmt.Errorf("remote image %s: %w", ref, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("remote image %s: %w", ref, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("remote image %s: status %d", ref, resp.StatusCode)
	}
	return url, nil
}
