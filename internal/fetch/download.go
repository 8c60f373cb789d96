package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

const chunkSize = 2 * 1024 * 1024

// download streams url to dest, reporting progress and checking the byte
// count against Content-Length when the server declares one.
func (c *Client) download(ctx context.Context, url, dest string) error {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "psdist")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return fmt.Errorf("download of %s failed: %s\n%s", url, resp.Status, strings.TrimSpace(string(body)))
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("cannot create %s: %w", dest, err)
	}
	defer out.Close()

	total := resp.ContentLength
	var downloaded int64
	lastPrint := time.Now()
	buf := make([]byte, chunkSize)
	for {
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := out.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write failed: %w", werr)
			}
			downloaded += int64(n)
			if time.Since(lastPrint) > 200*time.Millisecond {
				c.printProgress(downloaded, total)
				lastPrint = time.Now()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			if errors.Is(rerr, io.ErrUnexpectedEOF) {
				return fmt.Errorf("%w: %s: body ended after %d of %d bytes", ErrTransferIntegrity, url, downloaded, total)
			}
			return fmt.Errorf("download read failed: %w", rerr)
		}
	}
	c.printProgress(downloaded, total)
	if c.Progress != nil {
		fmt.Fprintln(c.Progress)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("cannot close %s: %w", dest, err)
	}

	if total > 0 && downloaded != total {
		return fmt.Errorf("%w: %s: expected %d bytes, got %d", ErrTransferIntegrity, url, total, downloaded)
	}
	c.Logger.Debug("downloaded", zap.String("url", url), zap.Int64("bytes", downloaded))
	return nil
}

// printProgress renders a single-line progress indicator.
func (c *Client) printProgress(downloaded, total int64) {
	if c.Progress == nil {
		return
	}
	if total > 0 {
		pct := float64(downloaded) / float64(total) * 100
		fmt.Fprintf(c.Progress, "\rDownloading... %s / %s (%.1f%%)", humanize.IBytes(uint64(downloaded)), humanize.IBytes(uint64(total)), pct)
		return
	}
	fmt.Fprintf(c.Progress, "\rDownloading... %s", humanize.IBytes(uint64(downloaded)))
}
