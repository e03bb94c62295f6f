package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

var frameExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
}

// DirectorySource reads image files dropped into a directory by a kiosk
// camera. Files already present at Open are never read, and each Frame
// yields the newest pending file, skipping older ones. A file rewritten in
// place counts as a new frame.
type DirectorySource struct {
	dir string

	mu   sync.Mutex
	seen map[string]time.Time
}

// NewDirectorySource watches dir.
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{dir: dir}
}

type pendingFrame struct {
	name    string
	modTime time.Time
}

func (s *DirectorySource) Open(context.Context) error {
	info, err := os.Stat(s.dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("scanner: %s is not a directory", s.dir)
	}
	frames, err := s.list()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = make(map[string]time.Time, len(frames))
	for _, f := range frames {
		s.seen[f.name] = f.modTime
	}
	return nil
}

func (s *DirectorySource) list() ([]pendingFrame, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	frames := make([]pendingFrame, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := frameExtensions[strings.ToLower(filepath.Ext(e.Name()))]; !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		frames = append(frames, pendingFrame{name: e.Name(), modTime: info.ModTime()})
	}
	return frames, nil
}

func (s *DirectorySource) Frame(context.Context) (image.Image, bool, error) {
	frames, err := s.list()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, fmt.Errorf("%w: %v", ErrDeviceLost, err)
		}
		return nil, false, err
	}

	s.mu.Lock()
	if s.seen == nil {
		s.seen = make(map[string]time.Time)
	}
	var (
		next  pendingFrame
		found bool
	)
	for _, f := range frames {
		if at, ok := s.seen[f.name]; ok && at.Equal(f.modTime) {
			continue
		}
		s.seen[f.name] = f.modTime
		if !found || f.modTime.After(next.modTime) || (f.modTime.Equal(next.modTime) && f.name > next.name) {
			next, found = f, true
		}
	}
	s.mu.Unlock()
	if !found {
		return nil, false, nil
	}

	img, err := imaging.Open(filepath.Join(s.dir, next.name), imaging.AutoOrientation(true))
	if err != nil {
		return nil, false, fmt.Errorf("scanner: read %s: %w", next.name, err)
	}
	return img, true, nil
}

func (s *DirectorySource) Close() error { return nil }

// SnapshotSource polls an IP camera's still-image endpoint.
type SnapshotSource struct {
	url         string
	client      *http.Client
	maxFailures int

	failures int
}

// NewSnapshotSource polls url. A nil client uses a 5 second timeout.
func NewSnapshotSource(url string, client *http.Client) *SnapshotSource {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &SnapshotSource{url: url, client: client, maxFailures: 10}
}

// Open fetches one snapshot to prove the camera answers.
func (s *SnapshotSource) Open(ctx context.Context) error {
	if s.url == "" {
		return errors.New("scanner: snapshot url not configured")
	}
	_, err := s.fetch(ctx)
	return err
}

// Frame returns ErrDeviceLost after too many consecutive failures.
func (s *SnapshotSource) Frame(ctx context.Context) (image.Image, bool, error) {
	img, err := s.fetch(ctx)
	if err != nil {
		s.failures++
		if s.failures >= s.maxFailures {
			return nil, false, fmt.Errorf("%w: %v", ErrDeviceLost, err)
		}
		return nil, false, err
	}
	s.failures = 0
	return img, true, nil
}

func (s *SnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("scanner: snapshot returned %d", resp.StatusCode)
	}
	return imaging.Decode(resp.Body, imaging.AutoOrientation(true))
}

func (s *SnapshotSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
