package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// thumbnailEntry is the container entry holding the job preview image.
// Containers written by Cura store it with a leading slash.
const thumbnailEntry = "Metadata/thumbnail.png"

// maxFrameBytes bounds how much of an MJPEG stream is read looking for a frame.
const maxFrameBytes = 4 << 20

// streamChunk is the read size used while scanning a stream.
const streamChunk = 1024

var (
	jpegSOI = []byte{0xff, 0xd8}
	jpegEOI = []byte{0xff, 0xd9}
)

// Camera sources.
const (
	CameraSnapshot = "snapshot"
	CameraStream   = "stream"
)

// Thumbnail is the outcome of a thumbnail lookup. Found is false when the
// container is not an archive or has no preview entry.
type Thumbnail struct {
	Found bool
	PNG   []byte
}

// Snapshot returns one JPEG from the camera's snapshot endpoint.
func (c *Client) Snapshot(ctx context.Context) ([]byte, error) {
	resp, err := c.getCamera(ctx, "camera snapshot", "action=snapshot")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes))
	if err != nil {
		return nil, unreachable("camera snapshot", fmt.Errorf("reading response: %w", err))
	}
	return extractJPEG(data)
}

// StreamFrame returns the first complete JPEG frame of the camera's MJPEG stream.
func (c *Client) StreamFrame(ctx context.Context) ([]byte, error) {
	resp, err := c.getCamera(ctx, "camera stream", "action=stream")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return readJPEGFrame(resp.Body, maxFrameBytes)
}

// CameraImage returns a JPEG using the configured camera source.
func (c *Client) CameraImage(ctx context.Context, source string) ([]byte, error) {
	if source == CameraStream {
		return c.StreamFrame(ctx)
	}
	return c.Snapshot(ctx)
}

// Thumbnail fetches the current job's container and extracts its preview.
// A rejected container request is returned as an error; an unreadable
// container is reported as not found.
func (c *Client) Thumbnail(ctx context.Context) (Thumbnail, error) {
	data, err := c.Container(ctx)
	if err != nil {
		return Thumbnail{}, err
	}
	return extractThumbnail(data)
}

// extractThumbnail opens data as a zip archive and reads the preview entry.
func extractThumbnail(data []byte) (Thumbnail, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Thumbnail{}, nil
	}

	for _, f := range zr.File {
		if strings.TrimPrefix(f.Name, "/") != thumbnailEntry {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return Thumbnail{}, fmt.Errorf("printer: opening thumbnail: %w", err)
		}
		defer rc.Close()

		png, err := io.ReadAll(io.LimitReader(rc, maxBinaryBody))
		if err != nil {
			return Thumbnail{}, fmt.Errorf("printer: reading thumbnail: %w", err)
		}
		return Thumbnail{Found: true, PNG: png}, nil
	}
	return Thumbnail{}, nil
}

// extractJPEG returns the first SOI..EOI span in data.
func extractJPEG(data []byte) ([]byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		return nil, ErrNoImage
	}
	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		return nil, ErrNoImage
	}
	end += start + len(jpegSOI) + len(jpegEOI)
	return bytes.Clone(data[start:end]), nil
}

// readJPEGFrame reads r in chunks until a complete JPEG is buffered or limit
// bytes have been read. Each byte is scanned once.
func readJPEGFrame(r io.Reader, limit int) ([]byte, error) {
	var buf []byte
	start, scanned := -1, 0
	chunk := make([]byte, streamChunk)
	for len(buf) < limit {
		n, err := r.Read(chunk)
		buf = append(buf, chunk[:n]...)

		// Markers can straddle chunks, so rescan the last byte of the previous read.
		from := max(scanned-1, 0)
		if start < 0 {
			if i := bytes.Index(buf[from:], jpegSOI); i >= 0 {
				start = from + i
				from = start + len(jpegSOI)
			}
		}
		if start >= 0 {
			from = max(from, start+len(jpegSOI))
			if i := bytes.Index(buf[from:], jpegEOI); i >= 0 {
				end := from + i + len(jpegEOI)
				return bytes.Clone(buf[start:end]), nil
			}
		}
		scanned = len(buf)

		if errors.Is(err, io.EOF) {
			return nil, ErrNoImage
		}
		if err != nil {
			return nil, unreachable("camera stream", fmt.Errorf("reading stream: %w", err))
		}
	}
	return nil, fmt.Errorf("%w within %d bytes", ErrNoImage, limit)
}
