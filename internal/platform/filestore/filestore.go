// Package filestore keeps uploaded audio recordings and exam files on local
// disk. Files are written once at upload time, read by the background job
// that processes them, and removed best-effort when their record is deleted.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrNotFound           = errors.New("file not found")
)

// URLPrefix is the public prefix under which stored files are served.
const URLPrefix = "/uploads/"

// Upload describes an incoming file.
type Upload struct {
	Folder       string
	OriginalName string
	ContentType  string
	MaxSize      int64
	// Allowed lists accepted MIME types; "audio/*" style wildcards match a
	// whole top-level type. Empty accepts anything.
	Allowed []string
}

// Stored describes a file after it has been written.
type Stored struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
	URL          string `json:"url"`
	ContentType  string `json:"content_type"`
	Size         int64  `json:"size"`
}

type Store interface {
	Save(ctx context.Context, up Upload, content io.Reader) (*Stored, error)
	ReadAll(ctx context.Context, path string) ([]byte, error)
	// Remove deletes the file at path. A missing file is not an error.
	Remove(ctx context.Context, path string) error
}

// RemoveBestEffort removes the file behind url and logs instead of failing.
func RemoveBestEffort(ctx context.Context, store Store, logger zerolog.Logger, url string) {
	if url == "" {
		return
	}
	p := PathFromURL(url)
	if err := store.Remove(ctx, p); err != nil {
		logger.Warn().Err(err).Str("path", p).Msg("failed to remove stored file")
	}
}

func URLFor(p string) string { return URLPrefix + p }

// PathFromURL maps a public file URL back to its store path.
func PathFromURL(url string) string {
	return strings.TrimPrefix(strings.TrimPrefix(url, URLPrefix), "/")
}

// ContentTypeAllowed reports whether contentType matches one of allowed.
func ContentTypeAllowed(contentType string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	ct, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		ct = strings.ToLower(strings.TrimSpace(contentType))
	}
	for _, a := range allowed {
		a = strings.ToLower(a)
		if a == ct {
			return true
		}
		if prefix, ok := strings.CutSuffix(a, "/*"); ok && strings.HasPrefix(ct, prefix+"/") {
			return true
		}
	}
	return false
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// UniqueName builds "<base>-<unixmillis>-<random6><ext>" from an original
// file name.
func UniqueName(original string, now time.Time) string {
	ext := strings.ToLower(filepath.Ext(original))
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "_.")
	if base == "" {
		base = "file"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return fmt.Sprintf("%s-%d-%s%s", base, now.UnixMilli(), suffix, ext)
}

// resolveContentType prefers the declared type, then the extension, then
// sniffing the first bytes.
func resolveContentType(declared, name string, head []byte) string {
	if declared != "" && declared != "application/octet-stream" {
		return declared
	}
	if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); byExt != "" {
		return byExt
	}
	return http.DetectContentType(head)
}

// prepare validates an upload and returns its content type plus a reader
// that replays the sniffed prefix.
func prepare(up Upload, content io.Reader) (string, io.Reader, error) {
	if strings.TrimSpace(up.OriginalName) == "" {
		return "", nil, ErrMissingFileName
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	ct := resolveContentType(up.ContentType, up.OriginalName, head)
	if !ContentTypeAllowed(ct, up.Allowed) {
		return "", nil, fmt.Errorf("%w: %s", ErrInvalidContentType, ct)
	}
	return ct, io.MultiReader(bytes.NewReader(head), content), nil
}

// Local stores files under a root directory, one sub-directory per folder.
type Local struct {
	root string
	now  func() time.Time
}

func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads dir: %w", err)
	}
	return &Local{root: root, now: time.Now}, nil
}

func (l *Local) Root() string { return l.root }

func (l *Local) Save(_ context.Context, up Upload, content io.Reader) (*Stored, error) {
	ct, r, err := prepare(up, content)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(l.root, filepath.Clean("/" + up.Folder))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create folder: %w", err)
	}
	name := UniqueName(up.OriginalName, l.now())
	full := filepath.Join(dir, name)

	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create file: %w", err)
	}

	if up.MaxSize > 0 {
		r = io.LimitReader(r, up.MaxSize+1)
	}
	size, err := io.Copy(f, r)
	closeErr := f.Close()
	if err == nil && up.MaxSize > 0 && size > up.MaxSize {
		err = ErrFileTooLarge
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(full)
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("write file: %w", err)
	}

	rel := path.Join(strings.Trim(filepath.ToSlash(up.Folder), "/"), name)
	return &Stored{
		Name:         name,
		OriginalName: up.OriginalName,
		Path:         rel,
		URL:          URLFor(rel),
		ContentType:  ct,
		Size:         size,
	}, nil
}

func (l *Local) full(p string) string {
	return filepath.Join(l.root, filepath.Clean("/"+filepath.FromSlash(p)))
}

func (l *Local) ReadAll(_ context.Context, p string) ([]byte, error) {
	data, err := os.ReadFile(l.full(p))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return data, err
}

func (l *Local) Remove(_ context.Context, p string) error {
	err := os.Remove(l.full(p))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}

// Memory is a thread-safe in-memory Store for tests and development.
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) Save(_ context.Context, up Upload, content io.Reader) (*Stored, error) {
	ct, r, err := prepare(up, content)
	if err != nil {
		return nil, err
	}
	if up.MaxSize > 0 {
		r = io.LimitReader(r, up.MaxSize+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if up.MaxSize > 0 && int64(len(data)) > up.MaxSize {
		return nil, ErrFileTooLarge
	}

	name := UniqueName(up.OriginalName, time.Now())
	rel := path.Join(strings.Trim(up.Folder, "/"), name)

	m.mu.Lock()
	m.files[rel] = data
	m.mu.Unlock()

	return &Stored{
		Name:         name,
		OriginalName: up.OriginalName,
		Path:         rel,
		URL:          URLFor(rel),
		ContentType:  ct,
		Size:         int64(len(data)),
	}, nil
}

func (m *Memory) ReadAll(_ context.Context, p string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
	}
	return append([]byte(nil), data...), nil
}

func (m *Memory) Remove(_ context.Context, p string) error {
	m.mu.Lock()
	delete(m.files, p)
	m.mu.Unlock()
	return nil
}

// Put seeds a file directly, bypassing validation.
func (m *Memory) Put(p string, data []byte) {
	m.mu.Lock()
	m.files[p] = data
	m.mu.Unlock()
}

func (m *Memory) Exists(p string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.files[p]
	return ok
}
