//go:build linux

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unsafe"

	"github.com/xyproto/fullgen/internal/engine"
	"golang.org/x/sys/unix"
)

// debounceDelay collapses the burst of events an editor save produces
const debounceDelay = 500 * time.Millisecond

// FileWatcher calls onChange once a watched file has been written and
// has stayed quiet for debounceDelay. It uses inotify.
type FileWatcher struct {
	fd          int
	watchMap    map[int]string
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	onChange    func(string)
	done        chan struct{}
	closeOnce   sync.Once
}

func NewFileWatcher(onChange func(string)) (*FileWatcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_NONBLOCK | unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("inotify_init failed: %w", err)
	}

	return &FileWatcher{
		fd:          fd,
		watchMap:    make(map[int]string),
		debounceMap: make(map[string]*time.Timer),
		onChange:    onChange,
		done:        make(chan struct{}),
	}, nil
}

func (fw *FileWatcher) AddFile(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	wd, err := unix.InotifyAddWatch(fw.fd, absPath, unix.IN_MODIFY|unix.IN_CLOSE_WRITE)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", absPath, err)
	}

	fw.mu.Lock()
	fw.watchMap[wd] = absPath
	fw.mu.Unlock()

	return nil
}

// Watch reads events until Close is called
func (fw *FileWatcher) Watch() {
	buf := make([]byte, (unix.SizeofInotifyEvent+unix.PathMax+1)*4)

	for {
		select {
		case <-fw.done:
			return
		default:
		}

		n, err := unix.Read(fw.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			select {
			case <-fw.done:
			default:
				engine.Tracef("watch: reading inotify events: %v\n", err)
			}
			return
		}

		offset := 0
		for offset+unix.SizeofInotifyEvent <= n {
			event := (*unix.InotifyEvent)(unsafe.Pointer(&buf[offset]))
			offset += unix.SizeofInotifyEvent + int(event.Len)

			if event.Mask&(unix.IN_MODIFY|unix.IN_CLOSE_WRITE) != 0 {
				fw.mu.Lock()
				path := fw.watchMap[int(event.Wd)]
				fw.mu.Unlock()

				if path != "" {
					fw.debouncedCallback(path)
				}
			}
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
		case <-fw.done:
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
		close(fw.done)
		fw.mu.Lock()
		for _, timer := range fw.debounceMap {
			timer.Stop()
		}
		fw.mu.Unlock()
		err = unix.Close(fw.fd)
	})
	return err
}
