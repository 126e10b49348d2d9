package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	profmodels "fieldbook/internal/profile/models"
	profstore "fieldbook/internal/profile/store"
	"fieldbook/internal/session/feed"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
	"fieldbook/pkg/platform/sentinel"
)

// Identity is the authenticated account as announced by the identity feed.
type Identity struct {
	AccountID   domain.AccountID
	DisplayName string
}

// View is the synchronizer's consistent session snapshot.
//
// Invariants:
//   - Profile, when present, always belongs to Identity; a stale profile from
//     a previous account is never observable
//   - IsLoading is true only between an identity-present event and the
//     completion of its profile load
type View struct {
	Identity  *Identity
	Profile   *profmodels.Profile
	IsLoading bool
}

// Synchronizer projects identity feed events into the session view. Identity
// is set synchronously on each event; the profile is loaded asynchronously
// and attached only if no newer identity event has arrived in the meantime.
type Synchronizer struct {
	profiles profstore.Store
	feed     feed.IdentityFeed
	logger   *slog.Logger
	now      func() time.Time

	mu         sync.Mutex
	generation uint64
	view       View
	subscriber func(View)
	subToken   uint64
}

func NewSynchronizer(profiles profstore.Store, f feed.IdentityFeed, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		profiles: profiles,
		feed:     f,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run consumes the identity feed until the context is canceled.
func (s *Synchronizer) Run(ctx context.Context) error {
	return s.feed.Consume(ctx, s.handle)
}

func (s *Synchronizer) handle(ctx context.Context, ev feed.Event) error {
	switch ev.Type {
	case feed.EventAccountPresent:
		accountID, err := domain.ParseAccountID(ev.AccountID)
		if err != nil {
			s.logger.WarnContext(ctx, "dropping identity event with invalid account id",
				"account_id", ev.AccountID, "error", err)
			return nil
		}
		s.SetIdentity(ctx, Identity{AccountID: accountID, DisplayName: ev.DisplayName})
	case feed.EventAccountAbsent:
		s.ClearIdentity()
	default:
		s.logger.WarnContext(ctx, "dropping identity event of unknown type", "type", ev.Type)
	}
	return nil
}

// SetIdentity exposes the identity immediately and kicks off the profile
// load. Each call bumps the view generation; an in-flight load for an older
// generation can no longer modify the view.
func (s *Synchronizer) SetIdentity(ctx context.Context, identity Identity) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.view = View{Identity: &identity, IsLoading: true}
	notify := s.snapshotLocked()
	s.mu.Unlock()
	notify()

	go s.loadProfile(ctx, gen, identity)
}

// ClearIdentity synchronously drops identity and profile together.
func (s *Synchronizer) ClearIdentity() {
	s.mu.Lock()
	s.generation++
	s.view = View{}
	notify := s.snapshotLocked()
	s.mu.Unlock()
	notify()
}

func (s *Synchronizer) loadProfile(ctx context.Context, gen uint64, identity Identity) {
	profile, err := s.profiles.FindByAccount(ctx, identity.AccountID)
	if errors.Is(err, sentinel.ErrNotFound) {
		// First sign-in on this service: project a fresh profile.
		if profile, err = profmodels.New(identity.AccountID, identity.DisplayName, s.now()); err == nil {
			err = s.profiles.Save(ctx, profile)
		}
	}

	s.mu.Lock()
	if gen != s.generation {
		// A newer identity event won the race; this load's result is stale.
		s.mu.Unlock()
		return
	}
	s.view.IsLoading = false
	if err != nil {
		s.view.Profile = nil
		s.logger.WarnContext(ctx, "profile load failed, session continues degraded",
			"account_id", identity.AccountID, "error", err)
	} else {
		s.view.Profile = profile
	}
	notify := s.snapshotLocked()
	s.mu.Unlock()
	notify()
}

// Current returns a copy of the session view.
func (s *Synchronizer) Current() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cloneViewLocked()
}

// Subscribe registers the view observer and returns its unsubscribe handle.
// The current view is delivered immediately. At most one subscription is
// active: subscribing again replaces the previous observer instead of
// duplicating deliveries, and a replaced observer's unsubscribe becomes a
// no-op.
func (s *Synchronizer) Subscribe(fn func(View)) func() {
	s.mu.Lock()
	s.subscriber = fn
	s.subToken++
	token := s.subToken
	current := s.cloneViewLocked()
	s.mu.Unlock()

	fn(current)
	return func() {
		s.mu.Lock()
		if s.subToken == token {
			s.subscriber = nil
		}
		s.mu.Unlock()
	}
}

// CompleteOnboarding flips the onboarding flag optimistically in the view,
// then persists it. A persistence failure reverts the view so it never
// disagrees with the store for longer than the failed call.
//
// Errors: CodeUnauthorized without an active identity, CodeProfileLoadFailed
// when the write fails.
func (s *Synchronizer) CompleteOnboarding(ctx context.Context) error {
	s.mu.Lock()
	if s.view.Identity == nil {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeUnauthorized, "no active identity")
	}
	accountID := s.view.Identity.AccountID
	var prev bool
	if s.view.Profile != nil {
		prev = s.view.Profile.OnboardingComplete
		s.view.Profile.CompleteOnboarding(s.now())
	}
	notify := s.snapshotLocked()
	s.mu.Unlock()
	notify()

	_, err := s.profiles.Execute(ctx, accountID, func(p *profmodels.Profile) error {
		p.CompleteOnboarding(s.now())
		return nil
	})
	if err == nil {
		return nil
	}

	s.mu.Lock()
	if s.view.Identity != nil && s.view.Identity.AccountID == accountID && s.view.Profile != nil {
		s.view.Profile.OnboardingComplete = prev
	}
	notify = s.snapshotLocked()
	s.mu.Unlock()
	notify()
	return dErrors.Wrap(err, dErrors.CodeProfileLoadFailed, "persist onboarding flag")
}

// UpdateSettings persists new preferences and refreshes the view.
//
// Errors: CodeUnauthorized without an active identity, CodeInvalidInput for
// unsupported settings, CodeProfileLoadFailed when the write fails.
func (s *Synchronizer) UpdateSettings(ctx context.Context, settings profmodels.Settings) error {
	s.mu.Lock()
	if s.view.Identity == nil {
		s.mu.Unlock()
		return dErrors.New(dErrors.CodeUnauthorized, "no active identity")
	}
	accountID := s.view.Identity.AccountID
	s.mu.Unlock()

	updated, err := s.profiles.Execute(ctx, accountID, func(p *profmodels.Profile) error {
		return p.UpdateSettings(settings, s.now())
	})
	if err != nil {
		var dErr *dErrors.Error
		if errors.As(err, &dErr) {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeProfileLoadFailed, "persist settings")
	}

	s.mu.Lock()
	if s.view.Identity != nil && s.view.Identity.AccountID == accountID {
		s.view.Profile = updated
	}
	notify := s.snapshotLocked()
	s.mu.Unlock()
	notify()
	return nil
}

func (s *Synchronizer) cloneViewLocked() View {
	v := s.view
	if v.Profile != nil {
		v.Profile = v.Profile.Clone()
	}
	return v
}

// snapshotLocked captures subscriber and view under the lock and returns the
// delivery as a closure to run after unlocking, so a subscriber may call back
// into the synchronizer.
func (s *Synchronizer) snapshotLocked() func() {
	if s.subscriber == nil {
		return func() {}
	}
	sub := s.subscriber
	v := s.cloneViewLocked()
	return func() { sub(v) }
}
