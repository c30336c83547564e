// Package indexer is the Transcript Indexer (spec §4.3, C3): it keeps
// the store's conversation data synchronized with a transcript
// directory, via an initial recursive scan plus a live fsnotify watch,
// both funneled through one serialized worker. Grounded on
// hazyhaar-GoClode's Engine.WatchFile fsnotify idiom (also reused by
// internal/shadow/engine.go) and on the teacher's
// agent/claudecode/transcript.go parse-then-upsert pipeline shape,
// generalized from a single hook invocation to a long-lived directory
// watch with a dedicated single-consumer queue.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aimemory/engine/internal/logging"
	"github.com/aimemory/engine/internal/store"
	"github.com/aimemory/engine/internal/transcript"
)

// Progress is the spec §4.3 initial-scan progress triple.
type Progress struct {
	FilesDiscovered   int
	FilesProcessed    int
	ConversationsIndexed int
}

// Indexer watches a transcript directory tree (one subdirectory per
// project, session files suffixed .jsonl) and keeps every conversation's
// store rows in sync with its source file.
type Indexer struct {
	store *store.Store
	root  string

	mu       sync.Mutex
	watching bool
	watcher  *fsnotify.Watcher
	inFlight map[string]bool

	progress   Progress
	progressMu sync.Mutex

	queue chan string
	stop  chan struct{}
	done  chan struct{}
}

// queueSize bounds the indexer's job queue; overflow blocks the
// producer rather than dropping transcript events, since losing a
// conversation update (unlike a shadow-commit file event) is not
// acceptable.
const queueSize = 4096

// New builds an Indexer over root, the configured transcript directory.
func New(st *store.Store, root string) *Indexer {
	return &Indexer{
		store:    st,
		root:     root,
		inFlight: make(map[string]bool),
		queue:    make(chan string, queueSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// IsWatching reports whether the OS filesystem subscription is
// currently active. Read directly from the flag Start sets
// synchronously before returning (spec §4.3 "hard requirement": never
// set through a deferred continuation).
func (ix *Indexer) IsWatching() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.watching
}

// Progress returns a snapshot of the initial-scan counters.
func (ix *Indexer) Progress() Progress {
	ix.progressMu.Lock()
	defer ix.progressMu.Unlock()
	return ix.progress
}

// Start performs the initial scan synchronously enqueues discovered
// files, establishes the recursive fsnotify watch, and launches the
// single-consumer worker. The watch subscription is active and
// IsWatching() reports true before Start returns.
func (ix *Indexer) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create transcript watcher: %w", err)
	}
	if err := addWatchTree(watcher, ix.root); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch transcript tree %s: %w", ix.root, err)
	}

	ix.mu.Lock()
	ix.watcher = watcher
	ix.watching = true
	ix.mu.Unlock()

	go ix.worker(ctx)
	go ix.pump(ctx)

	ix.initialScan()

	return nil
}

// Stop halts the watch and worker. IsWatching() reports false before
// Stop returns.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if ix.watcher != nil {
		_ = ix.watcher.Close()
		ix.watcher = nil
	}
	ix.watching = false
	ix.mu.Unlock()

	close(ix.stop)
	<-ix.done
}

func (ix *Indexer) initialScan() {
	var files []string
	entries, err := os.ReadDir(ix.root)
	if err != nil {
		return
	}
	for _, projectDir := range entries {
		if !projectDir.IsDir() {
			continue
		}
		projectPath := filepath.Join(ix.root, projectDir.Name())
		sessionEntries, err := os.ReadDir(projectPath)
		if err != nil {
			continue
		}
		for _, f := range sessionEntries {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".jsonl") {
				continue
			}
			files = append(files, filepath.Join(projectPath, f.Name()))
		}
	}

	ix.progressMu.Lock()
	ix.progress.FilesDiscovered = len(files)
	ix.progressMu.Unlock()

	for _, f := range files {
		ix.enqueue(f)
	}
}

// enqueue deduplicates against the in-flight set keyed by absolute path
// (spec §4.3 live-watch contract) before pushing onto the worker queue.
func (ix *Indexer) enqueue(path string) {
	ix.mu.Lock()
	if ix.inFlight[path] {
		ix.mu.Unlock()
		return
	}
	ix.inFlight[path] = true
	ix.mu.Unlock()

	ix.queue <- path
}

func (ix *Indexer) worker(ctx context.Context) {
	defer close(ix.done)
	for {
		select {
		case <-ix.stop:
			return
		case <-ctx.Done():
			return
		case path := <-ix.queue:
			ix.process(ctx, path)
			ix.mu.Lock()
			delete(ix.inFlight, path)
			ix.mu.Unlock()
		}
	}
}

func (ix *Indexer) process(ctx context.Context, path string) {
	f, err := os.Open(path) //nolint:gosec // path is inside the configured transcript directory
	if err != nil {
		logging.Warn(ctx, "transcript file unreadable", "error", err.Error())
		return
	}
	defer func() { _ = f.Close() }()

	result, err := transcript.ParseFile(f, path)
	if err != nil {
		logging.Warn(ctx, "transcript parse failed", "error", err.Error())
		return
	}

	now := time.Now()
	conv := store.Conversation{
		SessionID:     result.Conversation.SessionID,
		ProjectName:   result.Conversation.ProjectName,
		ProjectPath:   result.Conversation.ProjectPath,
		Title:         result.Conversation.Title,
		FirstSeenAt:   now,
		LastUpdatedAt: now,
		MessageCount:  len(result.Messages),
		SourcePath:    result.Conversation.SourcePath,
	}

	messages := make([]store.Message, 0, len(result.Messages))
	for _, m := range result.Messages {
		messages = append(messages, store.Message{
			Ordinal:     m.Ordinal,
			MessageID:   m.MessageID,
			Role:        m.Role,
			Content:     m.Content,
			ContentKind: m.ContentKind,
			CreatedAt:   m.Timestamp,
		})
	}

	if existing, err := ix.store.GetConversation(ctx, conv.SessionID); err == nil && existing != nil {
		conv.FirstSeenAt = existing.FirstSeenAt
	}

	if err := ix.store.ReplaceMessages(ctx, conv, messages); err != nil {
		logging.Warn(ctx, "transcript index write failed", "session", conv.SessionID, "error", err.Error())
		return
	}

	ix.progressMu.Lock()
	ix.progress.FilesProcessed++
	ix.progress.ConversationsIndexed++
	ix.progressMu.Unlock()
}

func (ix *Indexer) pump(ctx context.Context) {
	ix.mu.Lock()
	watcher := ix.watcher
	ix.mu.Unlock()
	if watcher == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ix.stop:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			ix.handleEvent(watcher, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn(ctx, "transcript watcher error", "error", err.Error())
		}
	}
}

func (ix *Indexer) handleEvent(watcher *fsnotify.Watcher, ev fsnotify.Event) {
	if ev.Op&fsnotify.Create == fsnotify.Create {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = watcher.Add(ev.Name)
			return
		}
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	if !strings.HasSuffix(ev.Name, ".jsonl") {
		return
	}
	ix.enqueue(ev.Name)
}

// addWatchTree registers root and its immediate project subdirectories
// (spec §4.3 "two levels deep — one directory per project").
func addWatchTree(watcher *fsnotify.Watcher, root string) error {
	if err := watcher.Add(root); err != nil {
		return err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil //nolint:nilerr // root may not exist yet at startup; the watch on root itself still catches its creation
	}
	for _, e := range entries {
		if e.IsDir() {
			_ = watcher.Add(filepath.Join(root, e.Name()))
		}
	}
	return nil
}
