package dispatch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
)

// Copy copies a local file, directory tree or glob pattern to the remote
// host. Direction is always local to remote; the operation creates and
// overwrites remote files but never deletes anything.
//
// A directory source is walked in lexical order, parents before children.
// Per-file failures do not abort the operation: they are aggregated into
// one *TransferError, and files beneath a remote directory that could not
// be created are reported as skipped. If the destination exists as a
// remote directory, the source basename is appended to it.
func (d *Dispatcher) Copy(ctx context.Context, source, dest string) error {
	session, err := d.entry("copy")
	if err != nil {
		return err
	}

	sources, err := resolveSources(source)
	if err != nil {
		return err
	}

	channel, err := session.OpenFile()
	if err != nil {
		return &TransferError{Err: err}
	}
	defer channel.Close()

	log.Debug().
		Str("source", source).
		Str("dest", dest).
		Stringer("channel", channel.ID()).
		Msg("starting copy")

	op := &copyOperation{client: channel.Client()}

	if len(sources) == 1 && sources[0] == source {
		err = op.copyPath(ctx, source, dest)
	} else {
		err = op.copyGlobMatches(ctx, sources, dest)
	}
	if err != nil {
		return &TransferError{Err: err}
	}

	if len(op.failures) > 0 || len(op.skipped) > 0 {
		return &TransferError{Failures: op.failures, Skipped: op.skipped}
	}

	log.Info().Str("source", source).Str("dest", dest).Msg("copy completed")
	return nil
}

// resolveSources expands a source argument into concrete local paths. A
// path that does not exist is treated as a glob pattern; a pattern with no
// matches is an error.
func resolveSources(source string) ([]string, error) {
	if _, err := os.Stat(source); err == nil {
		return []string{source}, nil
	}

	matches, err := filepath.Glob(source)
	if err != nil {
		return nil, &TransferError{Err: fmt.Errorf("invalid source pattern %q: %w", source, err)}
	}
	if len(matches) == 0 {
		return nil, &TransferError{Err: fmt.Errorf("file or directory not found: %s", source)}
	}
	return matches, nil
}

// copyOperation accumulates the outcome of one Copy call over a single
// file channel.
type copyOperation struct {
	client   *sftp.Client
	failures []FileFailure
	skipped  []string
}

// copyPath copies a single file or directory source.
func (op *copyOperation) copyPath(ctx context.Context, source, dest string) error {
	info, err := os.Stat(source)
	if err != nil {
		return err
	}

	if info.IsDir() {
		root := dest
		if op.isRemoteDir(dest) {
			root = path.Join(dest, filepath.Base(source))
		}
		return op.copyTree(ctx, source, root)
	}

	target := dest
	if op.isRemoteDir(dest) {
		target = path.Join(dest, filepath.Base(source))
	}
	if err := op.copyFile(ctx, source, target); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		op.failures = append(op.failures, FileFailure{Path: source, Err: err})
	}
	return nil
}

// copyGlobMatches copies every match of a glob pattern beneath dest.
// Matched directories keep their basename under dest; matched files land
// directly in it.
func (op *copyOperation) copyGlobMatches(ctx context.Context, matches []string, dest string) error {
	if !op.isRemoteDir(dest) {
		if err := op.client.MkdirAll(dest); err != nil {
			return fmt.Errorf("cannot create destination directory %s: %w", dest, err)
		}
	}

	for _, match := range matches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := op.copyPath(ctx, match, dest); err != nil {
			return err
		}
	}
	return nil
}

// copyTree walks a local directory in lexical order and reproduces it
// remotely. Failures are recorded per path; a directory that cannot be
// created remotely has its descendants reported as skipped instead of
// attempted.
func (op *copyOperation) copyTree(ctx context.Context, localRoot, remoteRoot string) error {
	return filepath.WalkDir(localRoot, func(localPath string, entry fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(localRoot, localPath)
		if err != nil {
			return err
		}
		remotePath := remoteJoin(remoteRoot, rel)

		if walkErr != nil {
			op.failures = append(op.failures, FileFailure{Path: localPath, Err: walkErr})
			return nil
		}

		if entry.IsDir() {
			if err := op.ensureRemoteDir(localPath, remotePath, rel == "."); err != nil {
				op.failures = append(op.failures, FileFailure{Path: localPath, Err: err})
				op.skipDescendants(localPath)
				return fs.SkipDir
			}
			return nil
		}

		if err := op.copyFile(ctx, localPath, remotePath); err != nil {
			op.failures = append(op.failures, FileFailure{Path: localPath, Err: err})
		}
		return nil
	})
}

// ensureRemoteDir creates remotePath as a directory, treating an already
// existing directory as success. The tree root may need intermediate
// parents; below it the walk order guarantees the parent exists.
func (op *copyOperation) ensureRemoteDir(localPath, remotePath string, isRoot bool) error {
	if info, err := op.client.Stat(remotePath); err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("remote path %s exists and is not a directory", remotePath)
	}

	if isRoot {
		if err := op.client.MkdirAll(remotePath); err != nil {
			return fmt.Errorf("cannot create remote directory %s: %w", remotePath, err)
		}
		return nil
	}

	if err := op.client.Mkdir(remotePath); err != nil {
		return fmt.Errorf("cannot create remote directory %s: %w", remotePath, err)
	}
	return nil
}

// skipDescendants records every path under an unreachable directory as
// skipped.
func (op *copyOperation) skipDescendants(localRoot string) {
	_ = filepath.WalkDir(localRoot, func(p string, entry fs.DirEntry, err error) error {
		if p != localRoot {
			op.skipped = append(op.skipped, p)
		}
		return nil
	})
}

// copyFile streams one local file to the remote host, preserving its
// permission bits and verifying the transferred byte count.
func (op *copyOperation) copyFile(ctx context.Context, localPath, remotePath string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("cannot read local file: %w", err)
	}
	defer localFile.Close()

	info, err := localFile.Stat()
	if err != nil {
		return fmt.Errorf("cannot stat local file: %w", err)
	}

	if dir := path.Dir(remotePath); dir != "" && dir != "/" && dir != "." {
		if err := op.client.MkdirAll(dir); err != nil {
			return fmt.Errorf("cannot create remote directory %s: %w", dir, err)
		}
	}

	remoteFile, err := op.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("cannot create remote file %s: %w", remotePath, err)
	}

	written, copyErr := copyWithContext(ctx, remoteFile, localFile)
	if closeErr := remoteFile.Close(); copyErr == nil && closeErr != nil {
		copyErr = closeErr
	}
	if copyErr != nil {
		return fmt.Errorf("cannot copy to %s: %w", remotePath, copyErr)
	}

	if written != info.Size() {
		return fmt.Errorf("short write to %s: %d of %d bytes", remotePath, written, info.Size())
	}

	if err := op.client.Chmod(remotePath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("cannot set mode on %s: %w", remotePath, err)
	}

	log.Debug().
		Str("local", localPath).
		Str("remote", remotePath).
		Int64("bytes", written).
		Msg("file copied")
	return nil
}

// isRemoteDir reports whether a remote path exists and is a directory.
func (op *copyOperation) isRemoteDir(remotePath string) bool {
	info, err := op.client.Stat(remotePath)
	return err == nil && info.IsDir()
}

// remoteJoin joins a remote root with a local relative path, normalizing
// separators.
func remoteJoin(remoteRoot, rel string) string {
	if rel == "." {
		return remoteRoot
	}
	return path.Join(remoteRoot, filepath.ToSlash(rel))
}

// copyWithContext copies src to dst, checking for cancellation between
// chunks.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			written += int64(nw)
			if writeErr != nil {
				return written, writeErr
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}
