package trigger

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestPathWatcherFiresOnMatchingEvent(t *testing.T) {
	dir := t.TempDir()
	mux := NewMultiplexer()
	w := NewPathWatcherWithMultiplexer(mux, dir, []string{"watched.txt"}, nil)

	fired := make(chan struct{}, 1)
	require.NoError(t, w.Arm(func() { fired <- struct{}{} }))
	defer w.Disarm()

	writeFile(t, dir, "watched.txt", "v1")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("expected callback to fire for a matching path")
	}
}

func TestPathWatcherIgnoresNonMatchingEvent(t *testing.T) {
	dir := t.TempDir()
	mux := NewMultiplexer()
	w := NewPathWatcherWithMultiplexer(mux, dir, []string{"watched.txt"}, nil)

	fired := make(chan struct{}, 1)
	require.NoError(t, w.Arm(func() { fired <- struct{}{} }))
	defer w.Disarm()

	writeFile(t, dir, "other.txt", "v1")
	// Give fsnotify a moment to deliver the (unwanted) event, then confirm
	// it never matched.
	select {
	case <-fired:
		t.Fatal("callback should not fire for a non-matching path")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestPathWatcherDebounceCoalescesBurst(t *testing.T) {
	dir := t.TempDir()
	mux := NewMultiplexer()
	w := NewPathWatcherWithMultiplexer(mux, dir, []string{"watched.txt"}, nil).WithDebounce(100 * time.Millisecond)

	var mu sync.Mutex
	fireCount := 0
	done := make(chan struct{})
	require.NoError(t, w.Arm(func() {
		mu.Lock()
		fireCount++
		n := fireCount
		mu.Unlock()
		if n == 1 {
			close(done)
		}
	}))
	defer w.Disarm()

	for i := 0; i < 5; i++ {
		writeFile(t, dir, "watched.txt", "v")
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("expected debounced callback to fire at least once")
	}

	// The burst above spanned ~50ms, well under the 100ms debounce window,
	// so it must have collapsed to a single fire. Wait past the window to
	// be sure no further delayed fire arrives from the coalesced burst.
	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, fireCount, "a burst within the debounce window should coalesce into one fire")
}

func TestMultiplexerSharesOneWatcherPerRoot(t *testing.T) {
	dir := t.TempDir()
	mux := NewMultiplexer()
	w1 := NewPathWatcherWithMultiplexer(mux, dir, []string{"a.txt"}, nil)
	w2 := NewPathWatcherWithMultiplexer(mux, dir, []string{"b.txt"}, nil)

	var fired1, fired2 int32
	require.NoError(t, w1.Arm(func() { fired1++ }))
	require.NoError(t, w2.Arm(func() { fired2++ }))

	abs, err := filepath.Abs(dir)
	require.NoError(t, err)

	mux.mu.Lock()
	_, ok := mux.dirs[abs]
	mux.mu.Unlock()
	require.True(t, ok, "both watchers rooted at the same directory should share one dispatcher")

	w1.Disarm()

	mux.mu.Lock()
	_, stillPresent := mux.dirs[abs]
	mux.mu.Unlock()
	require.True(t, stillPresent, "dispatcher should survive while w2 is still armed")

	w2.Disarm()

	mux.mu.Lock()
	_, goneAfterLast := mux.dirs[abs]
	mux.mu.Unlock()
	require.False(t, goneAfterLast, "dispatcher should be torn down once its last watcher disarms")
}

func TestPathWatcherLockAwarenessDefersUntilLockClears(t *testing.T) {
	dir := t.TempDir()
	mux := NewMultiplexer()
	lockFile := filepath.Join(dir, "index.lock")
	writeFile(t, dir, "index.lock", "")

	w := NewPathWatcherWithMultiplexer(mux, dir, []string{"watched.txt"}, nil).WithLockAwareness(dir)

	fired := make(chan struct{}, 1)
	require.NoError(t, w.Arm(func() { fired <- struct{}{} }))
	defer w.Disarm()

	writeFile(t, dir, "watched.txt", "v1")

	select {
	case <-fired:
		t.Fatal("callback should not fire while index.lock exists")
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, os.Remove(lockFile))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected callback to fire once the lock clears")
	}
}

func TestPathWatcherCarrierPlaceholderSubstitution(t *testing.T) {
	dir := t.TempDir()
	mux := NewMultiplexer()
	carrier := Carrier(func(placeholder string) (string, bool) {
		if placeholder == "name" {
			return "feature", true
		}
		return "", false
	})
	w := NewPathWatcherWithMultiplexer(mux, dir, []string{"refs/heads/%name%"}, carrier)

	fired := make(chan struct{}, 1)
	require.NoError(t, w.Arm(func() { fired <- struct{}{} }))
	defer w.Disarm()

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "refs", "heads"), 0o755))
	time.Sleep(100 * time.Millisecond) // let the recursive add pick up the new dir
	writeFile(t, filepath.Join(dir, "refs", "heads"), "feature", "sha")

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("expected callback to fire for the substituted placeholder path")
	}
}
