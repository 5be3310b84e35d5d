package agent

import (
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/mark3labs/agitegen/internal/logger"
)

// AlwaysIgnored are directories never reported, whatever .gitignore says.
var AlwaysIgnored = []string{".git", "node_modules", ".dart_tool", "build"}

// Watcher records which files change under a project root. It sees every
// write, whichever process makes it, and skips paths .gitignore excludes.
type Watcher struct {
	fsw     *fsnotify.Watcher
	root    string
	ignore  *ignoreList
	mu      sync.Mutex
	changed map[string]struct{}
	quit    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewWatcher creates a Watcher for root. exclude names extra directories to
// skip, relative to root (for example the data directory).
func NewWatcher(root string, exclude ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ignore := readIgnoreFile(root)
	for _, d := range append(slices.Clone(AlwaysIgnored), exclude...) {
		ignore.add(d + "/")
	}

	return &Watcher{
		fsw:     fsw,
		root:    root,
		ignore:  ignore,
		changed: map[string]struct{}{},
		quit:    make(chan struct{}),
	}, nil
}

// Start adds watches for every non-ignored directory and begins recording.
func (w *Watcher) Start() error {
	if err := w.watchTree(w.root, false); err != nil {
		_ = w.fsw.Close()
		return err
	}
	w.wg.Add(1)
	go w.loop()
	logger.Debug("watcher: started on %s with %d ignore rules", w.root, len(w.ignore.rules))
	return nil
}

// Close stops recording. It is safe to call more than once.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.quit)
		err = w.fsw.Close()
		w.wg.Wait()
	})
	return err
}

// Drain returns the sorted relative paths changed since the previous Drain
// and resets the set.
func (w *Watcher) Drain() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := make([]string, 0, len(w.changed))
	for p := range w.changed {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	w.changed = map[string]struct{}{}
	return paths
}

// watchTree adds watches below dir. With files set, regular files already
// present are recorded as changed; a directory created mid-pass may fill
// up before its watch exists.
func (w *Watcher) watchTree(dir string, files bool) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		rel, ok := w.rel(p)
		if !d.IsDir() {
			if files && ok && !w.ignore.Ignored(rel, false) {
				w.mu.Lock()
				w.changed[rel] = struct{}{}
				w.mu.Unlock()
			}
			return nil
		}
		if ok && rel != "." && w.ignore.Ignored(rel, true) {
			return fs.SkipDir
		}
		if err := w.fsw.Add(p); err != nil {
			logger.Warn("watcher: cannot watch %s: %v", p, err)
			if strings.Contains(err.Error(), "no space left on device") {
				logger.Error("watcher: inotify watch limit reached, raise fs.inotify.max_user_watches")
				return fs.SkipAll
			}
		}
		return nil
	})
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.quit:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.record(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: %v", err)
		}
	}
}

func (w *Watcher) record(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
		return
	}
	rel, ok := w.rel(ev.Name)
	if !ok {
		return
	}

	info, err := os.Stat(ev.Name)
	isDir := err == nil && info.IsDir()
	if w.ignore.Ignored(rel, isDir) {
		return
	}
	if isDir {
		if ev.Has(fsnotify.Create) {
			if err := w.watchTree(ev.Name, true); err != nil {
				logger.Warn("watcher: cannot watch new directory %s: %v", ev.Name, err)
			}
		}
		return
	}

	w.mu.Lock()
	w.changed[rel] = struct{}{}
	w.mu.Unlock()
}

// rel returns p relative to the root in slash form; ok is false outside it.
func (w *Watcher) rel(p string) (string, bool) {
	rel, err := filepath.Rel(w.root, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
