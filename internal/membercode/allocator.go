package membercode

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tablepoints/tablepoints-backend/pkg/errors"
	"github.com/tablepoints/tablepoints-backend/pkg/metrics"
)

const (
	codeMin = 10000
	codeMax = 99999

	// DefaultMaxAttempts bounds the draw loop. The 5-digit space holds 90k
	// codes, so exhausting 15 random draws signals a saturated tenant rather
	// than bad luck.
	DefaultMaxAttempts = 15
)

// CodeChecker answers whether a candidate code is already taken within the
// given restaurant scope. A nil restaurantID checks the global scope.
type CodeChecker interface {
	ExistsMemberCode(ctx context.Context, restaurantID *uuid.UUID, code string) (bool, error)
}

// Allocator draws unique 5-digit member codes scoped per restaurant.
//
// The existence pre-check is advisory only. Two concurrent registrations can
// both pass it with the same candidate; the unique index on
// (restaurant_id, member_code) is the final arbiter and the caller retries
// with a fresh draw on a unique violation.
type Allocator struct {
	checker     CodeChecker
	metrics     *metrics.LoyaltyMetrics
	maxAttempts int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewAllocator wires an allocator. Metrics may be nil. A maxAttempts of zero
// falls back to DefaultMaxAttempts.
func NewAllocator(checker CodeChecker, m *metrics.LoyaltyMetrics, maxAttempts int) (*Allocator, error) {
	if checker == nil {
		return nil, fmt.Errorf("code checker required")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Allocator{
		checker:     checker,
		metrics:     m,
		maxAttempts: maxAttempts,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Allocate draws candidates until one is free within the restaurant scope or
// the attempt budget runs out, in which case the error carries the retryable
// allocation-exhausted code.
func (a *Allocator) Allocate(ctx context.Context, restaurantID *uuid.UUID) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "member code allocation aborted")
		}

		candidate := a.draw()

		taken, err := a.checker.ExistsMemberCode(ctx, restaurantID, candidate)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check member code availability")
		}
		if !taken {
			return candidate, nil
		}
		a.metrics.IncAllocatorRetry()
	}
	return "", pkgerrors.New(pkgerrors.CodeAllocationExhausted,
		fmt.Sprintf("could not allocate a unique member code after %d attempts", a.maxAttempts))
}

func (a *Allocator) draw() string {
	a.mu.Lock()
	n := codeMin + a.rng.Intn(codeMax-codeMin+1)
	a.mu.Unlock()
	return strconv.Itoa(n)
}
