package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	obsmodels "fieldbook/internal/observation/models"
	obsstore "fieldbook/internal/observation/store"
	"fieldbook/internal/platform/logger"
	profmodels "fieldbook/internal/profile/models"
	profstore "fieldbook/internal/profile/store"
	"fieldbook/internal/session"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
)

// Prometheus collectors register once per test binary.
var discoveryMetrics = NewMetrics()

// flakyObsStore fails a window of Execute calls to simulate a crash between
// the stats update and the final save.
type flakyObsStore struct {
	obsstore.Store
	mu         sync.Mutex
	calls      int
	failOnCall int
	failCount  int
}

func (f *flakyObsStore) Execute(ctx context.Context, id domain.ObservationID,
	validate func(*obsmodels.Observation) error,
	mutate func(*obsmodels.Observation)) (*obsmodels.Observation, error) {
	f.mu.Lock()
	f.calls++
	fail := f.failOnCall != 0 && f.calls >= f.failOnCall && f.calls < f.failOnCall+f.failCount
	f.mu.Unlock()
	if fail {
		return nil, errors.New("store unavailable")
	}
	return f.Store.Execute(ctx, id, validate, mutate)
}

type DiscoverySuite struct {
	suite.Suite
	ctx          context.Context
	observations *flakyObsStore
	profiles     *profstore.InMemory
	service      *Service
	sess         session.Session
	now          time.Time
}

func TestDiscoverySuite(t *testing.T) {
	suite.Run(t, new(DiscoverySuite))
}

func (s *DiscoverySuite) SetupTest() {
	s.ctx = context.Background()
	s.observations = &flakyObsStore{Store: obsstore.NewInMemory()}
	s.profiles = profstore.NewInMemory()
	s.service = New(s.observations, s.profiles, discoveryMetrics, logger.Discard())
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.service.now = func() time.Time { return s.now }
	s.sess = session.Session{AccountID: domain.AccountID(uuid.New())}

	profile, err := profmodels.New(s.sess.AccountID, "Alex", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.Save(s.ctx, profile))
}

func (s *DiscoverySuite) newReadyObservation(species ...domain.SpeciesID) *obsmodels.Observation {
	obs, err := obsmodels.New(s.sess.AccountID,
		obsmodels.ImageRef{StorageRef: "img/" + uuid.NewString()},
		obsmodels.Location{}, s.now)
	s.Require().NoError(err)
	obs.ApplyAnalyzing(s.now)

	suggestions := make([]obsmodels.Suggestion, 0, len(species))
	for i, id := range species {
		suggestions = append(suggestions, obsmodels.Suggestion{
			SpeciesID:      id,
			DisplayName:    string(id),
			ScientificName: string(id),
			Confidence:     0.9 - float64(i)*0.1,
			Category:       domain.CategoryAnimal,
		})
	}
	obs.ApplySuggestions(suggestions, s.now)
	s.Require().NoError(s.observations.Create(s.ctx, obs))
	return obs
}

func (s *DiscoverySuite) stats() profmodels.Stats {
	profile, err := s.profiles.FindByAccount(s.ctx, s.sess.AccountID)
	s.Require().NoError(err)
	return profile.Stats
}

func (s *DiscoverySuite) TestConfirmFirstDiscovery() {
	obs := s.newReadyObservation("turdus-merula", "sturnus-vulgaris")

	res, err := s.service.Confirm(s.ctx, s.sess, obs.ID, "turdus-merula")
	s.Require().NoError(err)
	s.True(res.IsNewSpecies)
	s.Equal(obsmodels.StatusSaved, res.Observation.Status)
	s.True(res.Observation.StatsApplied)
	s.Equal(domain.SpeciesID("turdus-merula"), res.Observation.Confirmed.SpeciesID)
	s.InDelta(0.9, res.Observation.Confirmed.Confidence, 1e-9)
	s.Equal(profmodels.Stats{ObservationCount: 1, SpeciesCount: 1}, res.Stats)
}

func (s *DiscoverySuite) TestConfirmRepeatSpeciesCountsObservationOnly() {
	first := s.newReadyObservation("turdus-merula")
	second := s.newReadyObservation("turdus-merula")

	_, err := s.service.Confirm(s.ctx, s.sess, first.ID, "turdus-merula")
	s.Require().NoError(err)

	res, err := s.service.Confirm(s.ctx, s.sess, second.ID, "turdus-merula")
	s.Require().NoError(err)
	s.False(res.IsNewSpecies)
	s.Equal(profmodels.Stats{ObservationCount: 2, SpeciesCount: 1}, res.Stats)
}

func (s *DiscoverySuite) TestConfirmRejectsSpeciesOutsideSuggestions() {
	obs := s.newReadyObservation("turdus-merula")

	_, err := s.service.Confirm(s.ctx, s.sess, obs.ID, "unrelated")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConfirmationConflict))
	s.Equal(profmodels.Stats{}, s.stats())
}

func (s *DiscoverySuite) TestConfirmFailedRecordReportsRecognitionFailure() {
	obs, err := obsmodels.New(s.sess.AccountID,
		obsmodels.ImageRef{StorageRef: "img/x"}, obsmodels.Location{}, s.now)
	s.Require().NoError(err)
	obs.ApplyAnalyzing(s.now)
	obs.ApplyFailure(s.now)
	s.Require().NoError(s.observations.Create(s.ctx, obs))

	_, err = s.service.Confirm(s.ctx, s.sess, obs.ID, "turdus-merula")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeRecognitionFailed))
	s.Equal(profmodels.Stats{}, s.stats())
}

func (s *DiscoverySuite) TestConfirmRejectsNonReviewableRecord() {
	obs, err := obsmodels.New(s.sess.AccountID,
		obsmodels.ImageRef{StorageRef: "img/x"}, obsmodels.Location{}, s.now)
	s.Require().NoError(err)
	obs.ApplyAnalyzing(s.now)
	s.Require().NoError(s.observations.Create(s.ctx, obs))

	_, err = s.service.Confirm(s.ctx, s.sess, obs.ID, "turdus-merula")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStaleTransition))
}

func (s *DiscoverySuite) TestConfirmHidesForeignRecords() {
	obs := s.newReadyObservation("turdus-merula")

	stranger := session.Session{AccountID: domain.AccountID(uuid.New())}
	_, err := s.service.Confirm(s.ctx, stranger, obs.ID, "turdus-merula")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DiscoverySuite) TestConfirmWithoutProfile() {
	s.sess = session.Session{AccountID: domain.AccountID(uuid.New())}
	obs := s.newReadyObservation("turdus-merula")

	_, err := s.service.Confirm(s.ctx, s.sess, obs.ID, "turdus-merula")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeProfileLoadFailed))
}

func (s *DiscoverySuite) TestTransientSaveFailureIsRetried() {
	obs := s.newReadyObservation("turdus-merula")

	// Call 1 is the confirm transition, call 2 the final save; only the
	// first save attempt fails.
	s.observations.failOnCall = 2
	s.observations.failCount = 1

	res, err := s.service.Confirm(s.ctx, s.sess, obs.ID, "turdus-merula")
	s.Require().NoError(err)
	s.Equal(obsmodels.StatusSaved, res.Observation.Status)
	s.Equal(profmodels.Stats{ObservationCount: 1, SpeciesCount: 1}, res.Stats)
}

func (s *DiscoverySuite) TestFailedSaveRollsBackStatsAndResumes() {
	obs := s.newReadyObservation("turdus-merula")

	// Call 1 is the confirm transition, calls 2 and 3 the final save and its
	// retry; both fail, so the workflow compensates.
	s.observations.failOnCall = 2
	s.observations.failCount = 2
	_, err := s.service.Confirm(s.ctx, s.sess, obs.ID, "turdus-merula")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStatsApplyIncomplete))

	stored, err := s.observations.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(obsmodels.StatusConfirmed, stored.Status)
	s.False(stored.StatsApplied)
	s.Equal(profmodels.Stats{}, s.stats())

	// A retry naming a different species is a conflict, not a new attempt.
	_, err = s.service.Confirm(s.ctx, s.sess, obs.ID, "sturnus-vulgaris")
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConfirmationConflict))

	// Retrying the same species resumes and completes the workflow.
	res, err := s.service.Confirm(s.ctx, s.sess, obs.ID, "turdus-merula")
	s.Require().NoError(err)
	s.True(res.IsNewSpecies)
	s.Equal(obsmodels.StatusSaved, res.Observation.Status)
	s.Equal(profmodels.Stats{ObservationCount: 1, SpeciesCount: 1}, res.Stats)
}

func (s *DiscoverySuite) TestConcurrentConfirmationsCountDistinctSpeciesOnce() {
	const n = 16
	ids := make([]domain.ObservationID, n)
	for i := range ids {
		ids[i] = s.newReadyObservation("turdus-merula").ID
	}

	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.Confirm(s.ctx, s.sess, ids[i], "turdus-merula")
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		s.Require().NoError(errs[i])
	}
	s.Equal(profmodels.Stats{ObservationCount: n, SpeciesCount: 1}, s.stats())
}
