package storage

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"absence-api/pkg/apierror"
)

// Store is the attachment blob contract. Save returns an opaque reference;
// everything else is keyed by it.
type Store interface {
	Save(content io.Reader, fileName string, declaredMIME string) (string, error)
	Open(ref string) (io.ReadCloser, error)
	Delete(ref string) error
}

// DiskStore keeps attachment blobs in a flat directory. References are
// "<uuid>_<original name>" so a stray directory listing stays readable.
type DiskStore struct {
	root    string
	maxSize int64
	allowed map[string]struct{}
}

func NewDiskStore(root string, maxSize int64, allowedMIMETypes []string) (*DiskStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("storage root is required")
	}
	if maxSize <= 0 {
		maxSize = 10 << 20
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload root: %w", err)
	}

	allowed := make(map[string]struct{}, len(allowedMIMETypes))
	for _, mimeType := range allowedMIMETypes {
		trimmed := strings.TrimSpace(strings.ToLower(mimeType))
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	return &DiskStore{root: root, maxSize: maxSize, allowed: allowed}, nil
}

func (s *DiskStore) Save(content io.Reader, fileName string, declaredMIME string) (string, error) {
	safeName := sanitizeName(fileName)
	if safeName == "" {
		return "", apierror.Validation("file name is required", "")
	}

	sniff := make([]byte, 512)
	n, readErr := io.ReadFull(content, sniff)
	if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
		return "", fmt.Errorf("read upload: %w", readErr)
	}
	if n == 0 {
		return "", apierror.Validation("file is empty", safeName)
	}

	detected := http.DetectContentType(sniff[:n])
	if !s.isAllowed(detected) && !s.isAllowed(declaredMIME) {
		return "", apierror.Validation("file type is not allowed", detected)
	}

	ref := uuid.NewString() + "_" + safeName
	target := filepath.Join(s.root, ref)

	writer, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("open blob for write: %w", err)
	}

	// +1 over the limit so an oversized upload is detectable without
	// draining the whole stream.
	limited := io.LimitReader(io.MultiReader(strings.NewReader(string(sniff[:n])), content), s.maxSize+1)
	written, err := io.Copy(writer, limited)
	closeErr := writer.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if written > s.maxSize {
		_ = os.Remove(target)
		return "", apierror.Validation("file is too large", fmt.Sprintf("limit is %d bytes", s.maxSize))
	}

	return ref, nil
}

func (s *DiskStore) Open(ref string) (io.ReadCloser, error) {
	file, err := os.Open(filepath.Join(s.root, sanitizeName(ref)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierror.NotFound("attachment blob not found", ref)
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return file, nil
}

func (s *DiskStore) Delete(ref string) error {
	err := os.Remove(filepath.Join(s.root, sanitizeName(ref)))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

func (s *DiskStore) isAllowed(mimeType string) bool {
	if len(s.allowed) == 0 {
		return true
	}

	base, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		base = strings.ToLower(strings.TrimSpace(mimeType))
	}

	_, ok := s.allowed[base]
	return ok
}

// sanitizeName strips anything path-like from a client file name.
func sanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(name)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
