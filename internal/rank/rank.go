// Package rank provides process identity for multi-rank training jobs and the
// "run only on the primary rank" gating primitive.
//
// Each cooperating process resolves its own rank from launcher-provided
// environment variables at startup. No cross-process communication is needed:
// as long as the launcher hands out distinct ranks with exactly one rank 0,
// gating a side effect on the primary rank yields exactly-once execution
// across the group.
package rank

import (
	"os"
	"strconv"
)

// rankEnvKeys is the ordered list of environment variables consulted when
// resolving the process rank. The first key that parses as an integer wins.
var rankEnvKeys = []string{"RANK", "LOCAL_RANK"}

// Resolve reads the process rank from the environment.
// It checks RANK, then LOCAL_RANK, and defaults to 0 when neither is set.
// Absence of both variables is not an error - it is the single-process path.
// A value that does not parse as an integer is skipped like an unset one.
func Resolve() int {
	for _, key := range rankEnvKeys {
		value := os.Getenv(key)
		if value == "" {
			continue
		}
		rank, err := strconv.Atoi(value)
		if err != nil {
			continue
		}
		return rank
	}
	return 0
}

// Gate carries an explicitly resolved rank and gates operations on it.
//
// The rank is injected at construction rather than read lazily from a global,
// so tests can exercise both primary and non-primary behavior without
// touching the environment. A Gate is immutable and safe to copy.
type Gate struct {
	rank int
}

// NewGate returns a Gate for the given rank.
// Callers normally pass Resolve() once at process entry and thread the Gate
// through everything that needs it.
func NewGate(rank int) Gate {
	return Gate{rank: rank}
}

// Rank returns the rank this gate was constructed with.
func (g Gate) Rank() int {
	return g.rank
}

// IsPrimary reports whether this process is the primary rank (rank 0).
func (g Gate) IsPrimary() bool {
	return g.rank == 0
}

// RunIfPrimary executes fn only on the primary rank and returns its error.
// On every other rank it performs no side effect and returns nil.
func (g Gate) RunIfPrimary(fn func() error) error {
	if !g.IsPrimary() {
		return nil
	}
	return fn()
}
