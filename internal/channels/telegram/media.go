package telegram

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mymmrac/telego"
)

const (
	// maxDownloadBytes is the Bot API's own cap for bot downloads.
	maxDownloadBytes = 20 * 1024 * 1024

	downloadMaxRetries = 3

	// maxImageEdge bounds photo dimensions before storage; larger
	// images waste provider tokens without adding detail.
	maxImageEdge = 2048
)

// collectMedia downloads the message's photo and document (if any)
// into the thread's workspace and returns the stored paths. Failures
// are logged and skipped; the text part of the message still flows.
func (c *Channel) collectMedia(ctx context.Context, message *telego.Message, threadID, userID, chatType string) []string {
	var paths []string

	if len(message.Photo) > 0 {
		// Telegram orders photo sizes ascending; take the largest.
		photo := message.Photo[len(message.Photo)-1]
		data, _, err := c.download(ctx, photo.FileID)
		if err != nil {
			slog.Warn("telegram photo download failed", "file_id", photo.FileID, "error", err)
		} else {
			data = downscaleImage(data, maxImageEdge)
			name := fmt.Sprintf("photo_%s.jpg", photo.FileUniqueID)
			path, err := c.admin.SaveUpload(ctx, threadID, userID, chatType, name, data)
			if err != nil {
				slog.Warn("telegram photo save failed", "name", name, "error", err)
			} else {
				paths = append(paths, path)
			}
		}
	}

	if doc := message.Document; doc != nil {
		data, remotePath, err := c.download(ctx, doc.FileID)
		if err != nil {
			slog.Warn("telegram document download failed", "file_id", doc.FileID, "error", err)
		} else {
			name := documentFileName(doc, remotePath)
			path, err := c.admin.SaveUpload(ctx, threadID, userID, chatType, name, data)
			if err != nil {
				slog.Warn("telegram document save failed", "name", name, "error", err)
			} else {
				paths = append(paths, path)
			}
		}
	}

	return paths
}

// download fetches a file by file_id with retries, returning the bytes
// and the remote file path (carries the extension).
func (c *Channel) download(ctx context.Context, fileID string) ([]byte, string, error) {
	var file *telego.File
	var err error
	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		file, err = c.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadMaxRetries {
			select {
			case <-ctx.Done():
				return nil, "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, "", fmt.Errorf("get file info after %d attempts: %w", downloadMaxRetries, err)
	}
	if file.FilePath == "" {
		return nil, "", fmt.Errorf("empty file path for file_id %s", fileID)
	}
	if int64(file.FileSize) > maxDownloadBytes {
		return nil, "", fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, maxDownloadBytes)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", c.cfg.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read file: %w", err)
	}
	if int64(len(data)) > maxDownloadBytes {
		return nil, "", fmt.Errorf("file exceeds max size during download")
	}
	return data, file.FilePath, nil
}

// documentFileName picks a storage name: the sender's file name when
// present, otherwise a synthetic one keeping the remote extension.
func documentFileName(doc *telego.Document, remotePath string) string {
	if doc.FileName != "" {
		return filepath.Base(doc.FileName)
	}
	ext := filepath.Ext(remotePath)
	if ext == "" {
		ext = ".bin"
	}
	return "file_" + doc.FileUniqueID + ext
}

// downscaleImage re-encodes an image whose longest edge exceeds
// maxEdge as a fitted JPEG. Anything that fails to decode, or already
// fits, passes through unchanged.
func downscaleImage(data []byte, maxEdge int) []byte {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}
	bounds := img.Bounds()
	if bounds.Dx() <= maxEdge && bounds.Dy() <= maxEdge {
		return data
	}

	fitted := imaging.Fit(img, maxEdge, maxEdge, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return data
	}
	return buf.Bytes()
}
