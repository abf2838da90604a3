//go:build !linux

package main

import (
	"os"
	"path/filepath"
	"sync"
	"time"
)

const debounceDelay = 500 * time.Millisecond

// FileWatcher polls the modification time of the watched files
type FileWatcher struct {
	watchMap    map[string]time.Time
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
	stopChan    chan struct{}
	closeOnce   sync.Once
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	return &FileWatcher{
		watchMap:    make(map[string]time.Time),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
		stopChan:    make(chan struct{}),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return err
	}

	fw.mu.Lock()
	fw.watchMap[absPath] = info.ModTime()
	fw.mu.Unlock()

	return nil
}

func (fw *FileWatcher) Watch() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fw.checkFiles()
		case <-fw.stopChan:
			return
		}
	}
}

func (fw *FileWatcher) checkFiles() {
	fw.mu.Lock()
	paths := make([]string, 0, len(fw.watchMap))
	for path := range fw.watchMap {
		paths = append(paths, path)
	}
	fw.mu.Unlock()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}

		fw.mu.Lock()
		lastMod := fw.watchMap[path]
		fw.watchMap[path] = info.ModTime()
		fw.mu.Unlock()

		if !info.ModTime().Equal(lastMod) {
			fw.debouncedCallback(path)
		}
	}
}

func (fw *FileWatcher) debouncedCallback(path string) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if old, exists := fw.debounceMap[path]; exists {
		old.Stop()
	}

	// the callback takes mu before it reads timer, so it sees the assignment
	var timer *time.Timer
	timer = time.AfterFunc(debounceDelay, func() {
		select {
		case <-fw.stopChan:
			return
		default:
		}
		fw.mu.Lock()
		// a write during onChange re-arms path; that timer keeps its entry
		if fw.debounceMap[path] == timer {
			delete(fw.debounceMap, path)
		}
		fw.mu.Unlock()
		fw.onChange(path)
	})
	fw.debounceMap[path] = timer
}

func (fw *FileWatcher) Close() error {
	err := os.ErrClosed
	fw.closeOnce.Do(func() {
		close(fw.stopChan)
		err = nil
	})
	return err
}
