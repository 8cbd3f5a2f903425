// Package upload stores user images on disk and serves them back.
package upload

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/atlasbahamas/atlas/internal/model"
)

// MaxImageBytes caps one image upload.
const MaxImageBytes = 5 << 20

var (
	ErrTooLarge    = errors.New("upload too large")
	ErrUnsupported = errors.New("unsupported file type")
	ErrNotFound    = errors.New("upload not found")
)

var imageExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var contentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".pdf":  "application/pdf",
	".txt":  "text/plain; charset=utf-8",
	".csv":  "text/csv; charset=utf-8",
}

type Recorder interface {
	Create(u model.Upload) (int64, error)
}

// Store writes files under Dir and records them.
type Store struct {
	dir     string
	records Recorder
}

func New(dir string, records Recorder) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{dir: dir, records: records}, nil
}

// sniffImage identifies JPEG, PNG and WebP by signature.
func sniffImage(b []byte) (mime, ext string) {
	switch {
	case bytes.HasPrefix(b, []byte{0xff, 0xd8, 0xff}):
		return "image/jpeg", ".jpg"
	case bytes.HasPrefix(b, []byte("\x89PNG\r\n\x1a\n")):
		return "image/png", ".png"
	case len(b) >= 12 && string(b[0:4]) == "RIFF" && string(b[8:12]) == "WEBP":
		return "image/webp", ".webp"
	}
	return "", ""
}

// SaveImage validates fh by content signature and stores it under a random
// name. The declared type and extension must agree with the content.
// It returns the public path, for example /uploads/1f2e....jpg.
func (s *Store) SaveImage(fh *multipart.FileHeader, owner *int64, kind, relatedTable string, relatedID int64) (string, error) {
	if fh.Size > MaxImageBytes {
		return "", ErrTooLarge
	}
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxImageBytes {
		return "", ErrTooLarge
	}

	mime, ext := sniffImage(data)
	if ext == "" {
		return "", ErrUnsupported
	}
	declared := strings.ToLower(strings.TrimSpace(strings.Split(fh.Header.Get("Content-Type"), ";")[0]))
	if want, ok := imageExt[declared]; ok && want != ext {
		return "", ErrUnsupported
	}
	switch dext := strings.ToLower(filepath.Ext(fh.Filename)); dext {
	case ".jpeg":
		if ext != ".jpg" {
			return "", ErrUnsupported
		}
	case ".jpg", ".png", ".webp":
		if dext != ext {
			return "", ErrUnsupported
		}
	}

	name, err := randomName(ext)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), data, 0o640); err != nil {
		return "", fmt.Errorf("write upload: %w", err)
	}

	public := "/uploads/" + name
	if _, err := s.records.Create(model.Upload{
		OwnerUserID: owner, Kind: kind, RelatedTable: relatedTable, RelatedID: relatedID,
		Path: public, MIME: mime,
	}); err != nil {
		os.Remove(filepath.Join(s.dir, name))
		return "", err
	}
	return public, nil
}

func randomName(ext string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("random name: %w", err)
	}
	return hex.EncodeToString(b) + ext, nil
}

// Open reads a stored file by its name relative to the upload directory.
// Names that escape the directory are reported as not found.
func (s *Store) Open(rel string) ([]byte, string, error) {
	rel = strings.TrimLeft(rel, "/")
	if rel == "" || strings.Contains(rel, "..") || strings.ContainsRune(rel, 0) {
		return nil, "", ErrNotFound
	}
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, "", fmt.Errorf("open upload root: %w", err)
	}
	defer root.Close()

	f, err := root.Open(filepath.FromSlash(rel))
	if err != nil {
		return nil, "", ErrNotFound
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil || !st.Mode().IsRegular() {
		return nil, "", ErrNotFound
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("read upload: %w", err)
	}

	ct, ok := contentTypes[strings.ToLower(path.Ext(rel))]
	if !ok {
		ct = "application/octet-stream"
	}
	return data, ct, nil
}
