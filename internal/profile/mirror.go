package profile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xevora/storefront/internal/identity"
	"go.uber.org/zap"
)

// DefaultMirrorTimeout bounds each background upsert.
const DefaultMirrorTimeout = 3 * time.Second

// ErrMirrorTimeout reports an upsert abandoned after the timeout.
var ErrMirrorTimeout = errors.New("profile.mirror.timeout")

// Outcome is the discarded result of a background upsert.
type Outcome int

const (
	OutcomeStored Outcome = iota
	OutcomeSuppressed
)

func (outcome Outcome) String() string {
	if outcome == OutcomeStored {
		return "stored"
	}
	return "suppressed"
}

// Result describes one finished upsert. It only reaches logs and observers.
type Result struct {
	UserID  string
	Outcome Outcome
	Err     error
	Elapsed time.Duration
}

// MirrorOption customizes a Mirror.
type MirrorOption func(*Mirror)

// WithTimeout overrides DefaultMirrorTimeout.
func WithTimeout(timeout time.Duration) MirrorOption {
	return func(mirror *Mirror) {
		if timeout > 0 {
			mirror.timeout = timeout
		}
	}
}

// WithObserver receives every Result after it is logged.
func WithObserver(observer func(Result)) MirrorOption {
	return func(mirror *Mirror) {
		mirror.observer = observer
	}
}

// WithClock replaces the timestamp source.
func WithClock(now func() time.Time) MirrorOption {
	return func(mirror *Mirror) {
		mirror.now = now
	}
}

// Mirror performs fire-and-forget profile upserts.
type Mirror struct {
	store    Store
	logger   *zap.Logger
	timeout  time.Duration
	observer func(Result)
	now      func() time.Time
	pending  sync.WaitGroup
}

// NewMirror constructs a Mirror writing to store.
func NewMirror(store Store, logger *zap.Logger, options ...MirrorOption) *Mirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	mirror := &Mirror{
		store:   store,
		logger:  logger,
		timeout: DefaultMirrorTimeout,
		now:     time.Now,
	}
	for _, option := range options {
		option(mirror)
	}
	return mirror
}

// Upsert starts a detached upsert for principal and returns immediately.
func (mirror *Mirror) Upsert(principal identity.Principal) {
	if mirror == nil || mirror.store == nil || principal.UserID == "" {
		return
	}
	mirror.pending.Add(1)
	go func() {
		defer mirror.pending.Done()
		mirror.report(mirror.race(principal))
	}()
}

// Wait blocks until every started upsert has produced its Result.
func (mirror *Mirror) Wait() {
	if mirror == nil {
		return
	}
	mirror.pending.Wait()
}

func (mirror *Mirror) race(principal identity.Principal) Result {
	startedAt := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), mirror.timeout)
	defer cancel()

	written := make(chan error, 1)
	go func() {
		written <- mirror.write(ctx, principal)
	}()

	result := Result{UserID: principal.UserID, Outcome: OutcomeStored}
	select {
	case err := <-written:
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrMirrorTimeout, mirror.timeout)
		}
		if err != nil {
			result.Outcome = OutcomeSuppressed
			result.Err = err
		}
	case <-ctx.Done():
		result.Outcome = OutcomeSuppressed
		result.Err = fmt.Errorf("%w after %s", ErrMirrorTimeout, mirror.timeout)
	}
	result.Elapsed = time.Since(startedAt)
	return result
}

func (mirror *Mirror) write(ctx context.Context, principal identity.Principal) error {
	existing, found, getErr := mirror.store.Get(ctx, principal.UserID)
	if getErr != nil {
		return getErr
	}
	stamp := mirror.now().UTC()
	record := Record{
		UserID:      principal.UserID,
		Email:       principal.Email,
		DisplayName: principal.DisplayName,
		AvatarURL:   SanitizeAvatarURL(principal.AvatarURL),
		CreatedAt:   stamp,
		LastLogin:   stamp,
	}
	if found && !existing.CreatedAt.IsZero() {
		record.CreatedAt = existing.CreatedAt
	}
	return mirror.store.Merge(ctx, record)
}

func (mirror *Mirror) report(result Result) {
	if result.Outcome == OutcomeStored {
		mirror.logger.Debug("profile mirrored",
			zap.String("code", "profile.mirror.stored"),
			zap.String("user_id", result.UserID),
			zap.Duration("elapsed", result.Elapsed))
	} else {
		mirror.logger.Warn("profile mirror failed; authentication unaffected",
			zap.String("code", "profile.mirror.suppressed"),
			zap.String("user_id", result.UserID),
			zap.Duration("elapsed", result.Elapsed),
			zap.Error(result.Err))
	}
	if mirror.observer != nil {
		mirror.observer(result)
	}
}
