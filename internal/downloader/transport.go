package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/fehu/internal/checksum"
)

// ProgressFunc receives the cumulative number of bytes transferred so far.
type ProgressFunc func(bytes int64)

// Transport fetches a remote file to a local destination. Implementations
// must honor ctx cancellation at chunk boundaries and must not leave a
// partial or corrupt file at destination: when sha256 is non-empty the
// transfer is verified against it before the destination becomes visible.
type Transport interface {
	Fetch(ctx context.Context, sourceURL, destination, sha256 string, progress ProgressFunc) error
}

const fetchChunkSize = 64 * 1024

// HTTPTransport downloads over HTTP(S). The destination write is atomic:
// data streams into a temp file in the destination directory and is renamed
// into place only after a fully successful transfer, so a cancelled or
// failed download never surfaces as an installed package.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a transport. The client carries no overall
// timeout; large transfers are bounded by ctx instead.
func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{client: &http.Client{}}
}

// Fetch implements Transport.
func (t *HTTPTransport) Fetch(ctx context.Context, sourceURL, destination, sha256 string, progress ProgressFunc) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("transport: %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("transport: %s: unexpected status %d", sourceURL, resp.StatusCode)
	}

	dir := filepath.Dir(destination)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("transport: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".fehu-dl-*")
	if err != nil {
		return fmt.Errorf("transport: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	var total int64
	buf := make([]byte, fetchChunkSize)
	for {
		// Cooperative cancellation check at each chunk boundary.
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := tmp.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("transport: write temp: %w", writeErr)
			}
			total += int64(n)
			if progress != nil {
				progress(total)
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			// context cancellation surfaces through the body reader too
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("transport: read body: %w", readErr)
		}
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("transport: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("transport: close temp: %w", err)
	}
	// Verify before the rename: a corrupt transfer must never become
	// visible at the destination, not even briefly.
	if sha256 != "" {
		got, err := checksum.SumFile(tmpName)
		if err != nil {
			return err
		}
		if !strings.EqualFold(got, sha256) {
			return fmt.Errorf("transport: checksum mismatch: got %s, want %s", got, sha256)
		}
	}
	if err := os.Rename(tmpName, destination); err != nil {
		return fmt.Errorf("transport: rename: %w", err)
	}
	success = true
	return nil
}
