package federated

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileSource watches a provider credential cache file. A write leaving a non-empty token
// emits SignedIn; removing or emptying the file emits SignedOut. Repeated writes of the
// same token are collapsed.
type FileSource struct {
	Path     string
	Debounce time.Duration
	Warn     func(string, ...any)
}

func (s *FileSource) Run(ctx context.Context, out chan<- Event) error {
	if strings.TrimSpace(s.Path) == "" {
		return errors.New("federated: credential file path is required")
	}
	warn := s.Warn
	if warn == nil {
		warn = func(string, ...any) {}
	}
	debounce := s.Debounce
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("federated: create watcher: %w", err)
	}
	defer watcher.Close()

	path := filepath.Clean(s.Path)
	// The directory is watched so atomic rename-into-place writes are seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("federated: watch %s: %w", filepath.Dir(path), err)
	}

	last := ""
	if tok, ok := readCredential(path); ok {
		last = tok
	}

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) &&
				!event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Rename) &&
				!event.Has(fsnotify.Remove) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			tok, _ := readCredential(path)
			if tok == last {
				continue
			}
			last = tok
			ev := Event{Kind: SignedOut, At: time.Now()}
			if tok != "" {
				ev = Event{Kind: SignedIn, ProviderToken: tok, At: time.Now()}
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			warn("federated credential watcher: %v", err)
		}
	}
}

func readCredential(path string) (string, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return "", false
		}
		return "", true
	}
	return strings.TrimSpace(string(data)), true
}
