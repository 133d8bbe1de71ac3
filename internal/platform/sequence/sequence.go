// Package sequence hands out human readable display identifiers such as
// MDHS-2026-0001 (patients) and MDHS-USER-2026-0001 (users). Numbering is per
// scope and calendar year and restarts at 0001 every January.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mdhs/ehr/internal/platform/apperr"
	"github.com/mdhs/ehr/internal/platform/db"
)

type Scope string

const (
	ScopePatient Scope = "patient"
	ScopeUser    Scope = "user"
)

// MaxAttempts bounds how often an insert is retried after a display id collision.
const MaxAttempts = 3

func (s Scope) Prefix() string {
	switch s {
	case ScopeUser:
		return "MDHS-USER"
	default:
		return "MDHS"
	}
}

// Format renders the display id. The suffix is zero padded to four digits and
// grows past 9999 without truncation.
func Format(scope Scope, year, n int) string {
	return fmt.Sprintf("%s-%d-%04d", scope.Prefix(), year, n)
}

// ParseSuffix extracts the numeric suffix of id if it belongs to scope and year.
func ParseSuffix(scope Scope, year int, id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, fmt.Sprintf("%s-%d-", scope.Prefix(), year))
	if !ok || rest == "" {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Generator returns the next display id for a scope.
type Generator interface {
	Next(ctx context.Context, scope Scope) (string, error)
}

// Recorder receives generator events. *metrics.Metrics satisfies it.
type Recorder interface {
	DisplayIDGenerated(scope string)
	DisplayIDRetried(scope string)
}

type nopRecorder struct{}

func (nopRecorder) DisplayIDGenerated(string) {}
func (nopRecorder) DisplayIDRetried(string)   {}

// Allocate generates an id and passes it to insert. When insert fails with a
// unique violation on the display id constraint it retries with a fresh id,
// up to MaxAttempts, then reports a conflict on field. Each attempt runs in a
// savepoint so a collision does not abort the caller's transaction.
func Allocate(ctx context.Context, gen Generator, rec Recorder, scope Scope, field, constraint string,
	insert func(ctx context.Context, displayID string) error) (string, error) {
	if rec == nil {
		rec = nopRecorder{}
	}
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		id, err := gen.Next(ctx, scope)
		if err != nil {
			return "", fmt.Errorf("next %s id: %w", scope, err)
		}
		err = db.Savepoint(ctx, func(ctx context.Context) error {
			return insert(ctx, id)
		})
		if err == nil {
			rec.DisplayIDGenerated(string(scope))
			return id, nil
		}
		if name, ok := db.UniqueViolation(err); !ok || name != constraint {
			return "", err
		}
		rec.DisplayIDRetried(string(scope))
	}
	return "", apperr.Conflict(field, "could not allocate a unique identifier, please retry")
}

// MemoryGenerator is the in-process Generator used by unit tests and the
// seed command. It has the same numbering rules as the database generator.
type MemoryGenerator struct {
	mu       sync.Mutex
	counters map[string]int
	now      func() time.Time
}

func NewMemoryGenerator(now func() time.Time) *MemoryGenerator {
	if now == nil {
		now = time.Now
	}
	return &MemoryGenerator{counters: make(map[string]int), now: now}
}

// Seed sets the last used suffix for scope and year.
func (g *MemoryGenerator) Seed(scope Scope, year, last int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counters[counterKey(scope, year)] = last
}

func (g *MemoryGenerator) Next(_ context.Context, scope Scope) (string, error) {
	year := g.now().Year()
	g.mu.Lock()
	defer g.mu.Unlock()
	key := counterKey(scope, year)
	g.counters[key]++
	return Format(scope, year, g.counters[key]), nil
}

func counterKey(scope Scope, year int) string {
	return string(scope) + ":" + strconv.Itoa(year)
}
