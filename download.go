package imagemod

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	downloadMaxBytes = 25 * 1024 * 1024
	downloadTimeout  = 20 * time.Second
	downloadUA       = "go-imagemod/1.0"
)

// fetchFrames downloads an image from url and decodes it into frames.
// Unlike the rest of the pipeline this is a hard failure path: an input that
// cannot be fetched is an input decode error for that input only.
func (cfg *Config) fetchFrames(ctx context.Context, url string) ([]*Frame, error) {
	cfg.defaults()

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", downloadUA)
	req.Header.Set("Accept", "image/*,*/*;q=0.8")

	resp, err := cfg.HTTPClient.Do(req) //nolint:gosec // G704: URL is caller-supplied by design.
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(ct, ';'); idx >= 0 {
		ct = strings.TrimSpace(ct[:idx])
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, downloadMaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(data) > downloadMaxBytes {
		return nil, fmt.Errorf("fetch %s: body exceeds %d bytes", url, downloadMaxBytes)
	}

	// Content-Type lies often enough that magic bytes get the final say.
	if !strings.HasPrefix(ct, "image/") && !sniffImage(data) {
		return nil, fmt.Errorf("fetch %s: not an image (content-type %q)", url, ct)
	}

	return DecodeFrames(data, cfg.Policy.SampleFrames)
}

// sniffImage checks the magic bytes of the supported formats.
func sniffImage(data []byte) bool {
	switch {
	case len(data) >= 3 && data[0] == 0xff && data[1] == 0xd8 && data[2] == 0xff:
		return true // JPEG
	case len(data) >= 8 && string(data[:8]) == "\x89PNG\r\n\x1a\n":
		return true // PNG
	case isGIF(data):
		return true
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return true
	default:
		return false
	}
}
