package style

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// ErrFallback marks a load that fell back to FallbackStyle.
var ErrFallback = errors.New("style unavailable, using fallback")

// maxStyleBytes bounds a fetched style document.
const maxStyleBytes = 16 << 20

// Loader fetches a style document from Primary, then Fallback. Paths are
// file paths or http(s) URLs.
type Loader struct {
	Primary  string
	Fallback string
	Client   *http.Client
}

// NewLoader creates a loader with a bounded HTTP client.
func NewLoader(primary, fallback string) *Loader {
	return &Loader{
		Primary:  primary,
		Fallback: fallback,
		Client:   &http.Client{Timeout: 15 * time.Second},
	}
}

// Load returns the first style that can be fetched and parsed. When neither
// path yields a style it returns FallbackStyle together with an error that
// wraps ErrFallback; the returned style is never nil.
func (l *Loader) Load(ctx context.Context) (*Style, error) {
	var errs []error
	for _, path := range []string{l.Primary, l.Fallback} {
		if path == "" {
			continue
		}
		s, err := l.loadOne(ctx, path)
		if err == nil {
			return s, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", path, err))
	}
	if len(errs) == 0 {
		errs = append(errs, errors.New("no style path configured"))
	}
	return FallbackStyle(), fmt.Errorf("%w: %w", ErrFallback, errors.Join(errs...))
}

func (l *Loader) loadOne(ctx context.Context, path string) (*Style, error) {
	data, err := l.read(ctx, path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

func (l *Loader) read(ctx context.Context, path string) ([]byte, error) {
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		return os.ReadFile(path)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxStyleBytes))
}
