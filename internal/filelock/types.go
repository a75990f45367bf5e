package filelock

import (
	"time"

	"github.com/Iron-Ham/phyling/internal/errors"
)

// LockFileName is the claim file inside a claimed directory.
const LockFileName = ".phyling.lock"

// Sentinel errors returned by lock operations.
var (
	// ErrAlreadyClaimed is returned when the directory is claimed by another live run.
	ErrAlreadyClaimed = errors.New("directory already claimed by another run")

	// ErrNotOwner is returned when releasing a claim that belongs to another run.
	ErrNotOwner = errors.New("run does not own this claim")

	// ErrNotClaimed is returned when releasing a directory that is not claimed.
	ErrNotClaimed = errors.New("directory is not claimed")
)

// Claim is the content of a claim file.
type Claim struct {
	Owner     string    `json:"owner"` // Run ID
	PID       int       `json:"pid"`
	Host      string    `json:"host"`
	ClaimedAt time.Time `json:"claimed_at"`
}

// settleTime is how long an unreadable claim file is assumed to be in the
// middle of being written by its creator.
const settleTime = 5 * time.Second
