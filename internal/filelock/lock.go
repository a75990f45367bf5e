package filelock

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Iron-Ham/phyling/internal/errors"
)

// Lock is a held claim on a directory.
type Lock struct {
	mu       sync.Mutex
	path     string
	claim    Claim
	released bool
}

// Acquire claims dir for owner, creating dir if needed. A claim by the same
// owner in this process is returned as is; a stale claim is replaced.
func Acquire(dir, owner string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create %s: %w", dir, err)
	}
	path := filepath.Join(dir, LockFileName)
	host, _ := os.Hostname()
	claim := Claim{Owner: owner, PID: os.Getpid(), Host: host, ClaimedAt: time.Now().UTC()}

	// A stale claim is removed and the create retried once.
	for attempt := 0; attempt < 2; attempt++ {
		created, err := create(path, claim)
		if err != nil {
			return nil, err
		}
		if created {
			return &Lock{path: path, claim: claim}, nil
		}

		existing, err := readClaim(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			continue
		case err != nil:
			if info, statErr := os.Stat(path); statErr == nil && time.Since(info.ModTime()) < settleTime {
				return nil, fmt.Errorf("%w: %s is being written", ErrAlreadyClaimed, path)
			}
		case existing.Owner == owner && existing.PID == claim.PID:
			return &Lock{path: path, claim: existing}, nil
		case !existing.stale(host):
			return nil, fmt.Errorf("%w: run %s (pid %d on %s) since %s",
				ErrAlreadyClaimed, existing.Owner, existing.PID, existing.Host, existing.ClaimedAt.Format(time.RFC3339))
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("remove stale claim %s: %w", path, err)
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAlreadyClaimed, path)
}

// create writes claim to path unless the file already exists.
func create(path string, claim Claim) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create claim %s: %w", path, err)
	}
	err = json.NewEncoder(f).Encode(claim)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return false, fmt.Errorf("write claim %s: %w", path, err)
	}
	return true, nil
}

// Read returns the current claim on dir.
func Read(dir string) (Claim, error) {
	return readClaim(filepath.Join(dir, LockFileName))
}

func readClaim(path string) (Claim, error) {
	var c Claim
	data, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse claim %s: %w", path, err)
	}
	return c, nil
}

// stale reports whether the claiming process is known to be gone. Claims
// from other hosts are never stale.
func (c Claim) stale(host string) bool {
	if c.Host != host {
		return false
	}
	return !processAlive(c.PID)
}

// Owner returns the run that holds the lock.
func (l *Lock) Owner() string {
	return l.claim.Owner
}

// Path returns the claim file.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the claim. Releasing twice is a no-op.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return nil
	}

	existing, err := readClaim(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotClaimed, l.path)
	}
	if err != nil {
		return err
	}
	if existing.Owner != l.claim.Owner || existing.PID != l.claim.PID {
		return fmt.Errorf("%w: %s owns %s", ErrNotOwner, existing.Owner, l.path)
	}
	if err := os.Remove(l.path); err != nil {
		return fmt.Errorf("release %s: %w", l.path, err)
	}
	l.released = true
	return nil
}
