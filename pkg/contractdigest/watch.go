package contractdigest

import (
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// CachingSummarizer wraps a Summarizer with an in-memory Digest cache that is
// invalidated whenever the contracts directory changes on disk. This keeps
// the Scheduler from re-parsing every contract file on every phase while
// still reacting promptly to a human editing contracts mid-run.
type CachingSummarizer struct {
	summarizer *Summarizer

	mu    sync.Mutex
	cache *Digest

	watcher *fsnotify.Watcher
	dirty   atomic.Bool
	closeCh chan struct{}
}

// NewCachingSummarizer wraps summarizer with fsnotify-based invalidation. If
// the watcher cannot be started (e.g. the directory does not exist yet), the
// cache still works, but without a watcher Get keeps returning the first
// computed Digest until Invalidate is called.
func NewCachingSummarizer(contractsDir string) *CachingSummarizer {
	cs := &CachingSummarizer{
		summarizer: NewSummarizer(contractsDir),
		closeCh:    make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return cs
	}
	if err := watcher.Add(contractsDir); err != nil {
		watcher.Close()
		return cs
	}
	cs.watcher = watcher
	cs.dirty.Store(true)

	go cs.watchLoop()
	return cs
}

func (cs *CachingSummarizer) watchLoop() {
	for {
		select {
		case _, ok := <-cs.watcher.Events:
			if !ok {
				return
			}
			cs.dirty.Store(true)
		case _, ok := <-cs.watcher.Errors:
			if !ok {
				return
			}
			cs.dirty.Store(true)
		case <-cs.closeCh:
			return
		}
	}
}

// Get returns the cached Digest, recomputing it if this is the first call or
// the contracts directory has changed since the last computation.
func (cs *CachingSummarizer) Get() (Digest, error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	if cs.cache != nil && !cs.dirty.Load() {
		return *cs.cache, nil
	}

	digest, err := cs.summarizer.Summarize()
	if err != nil {
		return Digest{}, err
	}
	cs.cache = &digest
	cs.dirty.Store(false)
	return digest, nil
}

// Invalidate forces the next Get call to recompute regardless of watcher
// state. Used by the Scheduler after the refiner agent edits contracts.
func (cs *CachingSummarizer) Invalidate() {
	cs.dirty.Store(true)
}

// Close stops the underlying watcher, if one was started.
func (cs *CachingSummarizer) Close() error {
	close(cs.closeCh)
	if cs.watcher != nil {
		return cs.watcher.Close()
	}
	return nil
}
