package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	lockWaitLimit  = 5 * time.Second
	lockPollPeriod = 10 * time.Millisecond
	lockStaleAfter = time.Minute
)

// AppendLineLocked appends one newline-terminated record to path while holding
// a sidecar "<path>.lock" file, so concurrent processes never interleave lines.
func AppendLineLocked(path string, line []byte, mode os.FileMode) error {
	cleanPath, err := validateLocalOrAbsolutePath(path)
	if err != nil {
		return err
	}
	if strings.ContainsRune(string(line), '\n') {
		return fmt.Errorf("line must not contain a newline")
	}
	parent := filepath.Dir(cleanPath)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create append directory: %w", err)
		}
	}
	payload := make([]byte, 0, len(line)+1)
	payload = append(payload, line...)
	payload = append(payload, '\n')

	err = withLockFile(cleanPath+".lock", func() error {
		// #nosec G304 -- append path is validated local relative or absolute.
		file, openErr := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if openErr != nil {
			return fmt.Errorf("open append file: %w", openErr)
		}
		defer func() {
			_ = file.Close()
		}()
		if _, writeErr := file.Write(payload); writeErr != nil {
			return fmt.Errorf("append file line: %w", writeErr)
		}
		if syncErr := file.Sync(); syncErr != nil {
			return fmt.Errorf("sync append file: %w", syncErr)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if parent != "." && parent != "" {
		syncDirectory(parent)
	}
	return nil
}

func withLockFile(lockPath string, fn func() error) error {
	deadline := time.Now().Add(lockWaitLimit)
	for {
		// #nosec G304 -- lock path is derived from a validated append path.
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lockFile.Close()
			defer func() {
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !isLockContention(err, lockPath) {
			return fmt.Errorf("acquire append lock: %w", err)
		}
		if lockIsStale(lockPath, time.Now()) {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("append lock timeout after %s", lockWaitLimit)
		}
		time.Sleep(lockPollPeriod)
	}
}

func isLockContention(acquireErr error, lockPath string) bool {
	if os.IsExist(acquireErr) {
		return true
	}
	if !os.IsPermission(acquireErr) {
		return false
	}
	_, statErr := os.Stat(lockPath)
	return statErr == nil
}

func lockIsStale(lockPath string, now time.Time) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime()) > lockStaleAfter
}

func validateLocalOrAbsolutePath(path string) (string, error) {
	cleanPath := filepath.Clean(strings.TrimSpace(path))
	if cleanPath == "." {
		return "", fmt.Errorf("path is required")
	}
	if filepath.IsLocal(cleanPath) || filepath.IsAbs(cleanPath) {
		return cleanPath, nil
	}
	return "", fmt.Errorf("path must be local relative or absolute")
}
