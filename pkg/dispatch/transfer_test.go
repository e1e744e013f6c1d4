package dispatch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestConnectReuse(t *testing.T) {
	d := newTestDispatcher(t)

	ts1, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ts2, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if ts1 != ts2 {
		t.Error("expected Connect to reuse the live transfer session")
	}
	if got := d.session.LiveChannels(); got != 1 {
		t.Errorf("expected 1 live channel, got %d", got)
	}
}

func TestConnectAfterTransferClose(t *testing.T) {
	d := newTestDispatcher(t)

	ts1, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ts1.Close(); err != nil {
		t.Fatalf("unexpected error closing transfer session: %v", err)
	}

	// Closing the sub-session leaves the dispatcher usable; the next
	// Connect opens a fresh one.
	ts2, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts1 == ts2 {
		t.Error("expected a fresh transfer session after close")
	}

	if err := ts2.Mkdir(filepath.Join(t.TempDir(), "fresh")); err != nil {
		t.Errorf("expected fresh session to work, got %v", err)
	}
}

func TestTransferCloseIdempotent(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := ts.Close(); err != nil {
		t.Fatalf("unexpected error on first close: %v", err)
	}
	if err := ts.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
}

func TestTransferUseAfterClose(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ts.Close(); err != nil {
		t.Fatalf("unexpected error on close: %v", err)
	}

	var sessionErr *SessionError
	if err := ts.Mkdir("/tmp/x"); !errors.As(err, &sessionErr) {
		t.Errorf("Mkdir: expected *SessionError, got %T: %v", err, err)
	}
	if _, err := ts.List("/tmp"); !errors.As(err, &sessionErr) {
		t.Errorf("List: expected *SessionError, got %T: %v", err, err)
	}
}

func TestMkdir(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	dir := filepath.Join(t.TempDir(), "newdir")
	if err := ts.Mkdir(dir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("failed to stat %s: %v", dir, err)
	}
	if !info.IsDir() {
		t.Errorf("expected %s to be a directory", dir)
	}

	// Creating an existing directory is idempotent.
	if err := ts.Mkdir(dir); err != nil {
		t.Errorf("expected idempotent mkdir, got %v", err)
	}
}

func TestMkdirFailures(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "occupied")
	writeLocalFile(t, filePath, "x", 0644)

	tests := []struct {
		name string
		path string
	}{
		{
			name: "path exists as a file",
			path: filePath,
		},
		{
			name: "missing parent",
			path: filepath.Join(tmpDir, "no", "parent", "here"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ts.Mkdir(tt.path)
			var fsErr *RemoteFSError
			if !errors.As(err, &fsErr) {
				t.Fatalf("expected *RemoteFSError, got %T: %v", err, err)
			}
			if fsErr.Op != "mkdir" {
				t.Errorf("expected op 'mkdir', got %q", fsErr.Op)
			}
			if fsErr.Path != tt.path {
				t.Errorf("expected path %q, got %q", tt.path, fsErr.Path)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "victim.txt")
	writeLocalFile(t, filePath, "x", 0644)

	if err := ts.Remove(filePath); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(filePath); !os.IsNotExist(err) {
		t.Errorf("expected %s to be gone", filePath)
	}

	var fsErr *RemoteFSError
	if err := ts.Remove(filePath); !errors.As(err, &fsErr) {
		t.Errorf("expected *RemoteFSError for a missing path, got %T: %v", err, err)
	}
	if err := ts.Remove(tmpDir); !errors.As(err, &fsErr) {
		t.Errorf("expected *RemoteFSError for a directory, got %T: %v", err, err)
	}
}

func TestRmdir(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tmpDir := t.TempDir()
	emptyDir := filepath.Join(tmpDir, "empty")
	if err := os.Mkdir(emptyDir, 0755); err != nil {
		t.Fatalf("failed to create directory: %v", err)
	}
	fullDir := filepath.Join(tmpDir, "full")
	writeLocalFile(t, filepath.Join(fullDir, "keep.txt"), "x", 0644)
	filePath := filepath.Join(tmpDir, "plain.txt")
	writeLocalFile(t, filePath, "x", 0644)

	if err := ts.Rmdir(emptyDir); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := os.Stat(emptyDir); !os.IsNotExist(err) {
		t.Errorf("expected %s to be gone", emptyDir)
	}

	var fsErr *RemoteFSError
	if err := ts.Rmdir(fullDir); !errors.As(err, &fsErr) {
		t.Errorf("expected *RemoteFSError for a non-empty directory, got %T: %v", err, err)
	}
	if err := ts.Rmdir(filePath); !errors.As(err, &fsErr) {
		t.Errorf("expected *RemoteFSError for a file, got %T: %v", err, err)
	}
	if err := ts.Rmdir(filepath.Join(tmpDir, "nope")); !errors.As(err, &fsErr) {
		t.Errorf("expected *RemoteFSError for a missing path, got %T: %v", err, err)
	}
}

func TestStatExistsIsDir(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "file.txt")
	writeLocalFile(t, filePath, "hello", 0644)

	info, err := ts.Stat(filePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Size() != 5 {
		t.Errorf("expected size 5, got %d", info.Size())
	}

	if _, err := ts.Stat(filepath.Join(tmpDir, "nope")); err == nil {
		t.Error("expected error for a missing path")
	}

	exists, err := ts.Exists(filePath)
	if err != nil || !exists {
		t.Errorf("expected existing file, got exists=%v err=%v", exists, err)
	}
	exists, err = ts.Exists(filepath.Join(tmpDir, "nope"))
	if err != nil || exists {
		t.Errorf("expected missing file, got exists=%v err=%v", exists, err)
	}

	isDir, err := ts.IsDir(tmpDir)
	if err != nil || !isDir {
		t.Errorf("expected directory, got isDir=%v err=%v", isDir, err)
	}
	isDir, err = ts.IsDir(filePath)
	if err != nil || isDir {
		t.Errorf("expected file, got isDir=%v err=%v", isDir, err)
	}
	isDir, err = ts.IsDir(filepath.Join(tmpDir, "nope"))
	if err != nil || isDir {
		t.Errorf("expected missing path, got isDir=%v err=%v", isDir, err)
	}
}

func TestList(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tmpDir := t.TempDir()
	writeLocalFile(t, filepath.Join(tmpDir, "a.txt"), "a", 0644)
	writeLocalFile(t, filepath.Join(tmpDir, "b.txt"), "b", 0644)

	entries, err := ts.List(tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	names := map[string]bool{}
	for _, entry := range entries {
		names[entry.Name()] = true
	}
	if !names["a.txt"] || !names["b.txt"] {
		t.Errorf("unexpected entries: %v", names)
	}

	var fsErr *RemoteFSError
	if _, err := ts.List(filepath.Join(tmpDir, "nope")); !errors.As(err, &fsErr) {
		t.Errorf("expected *RemoteFSError for a missing directory, got %T: %v", err, err)
	}
}

func TestDispatcherCloseClosesTransfer(t *testing.T) {
	d := newTestDispatcher(t)

	ts, err := d.Connect()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := d.Close(); err != nil {
		t.Fatalf("unexpected error on close: %v", err)
	}
	// Close is idempotent.
	if err := d.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}

	var sessionErr *SessionError
	if err := ts.Mkdir("/tmp/x"); !errors.As(err, &sessionErr) {
		t.Errorf("expected *SessionError after dispatcher close, got %T: %v", err, err)
	}

	var closedErr *ClosedError
	if _, err := d.Connect(); !errors.As(err, &closedErr) {
		t.Errorf("expected *ClosedError, got %T: %v", err, err)
	}
}
