package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"fieldbook/internal/observation/metrics"
	"fieldbook/internal/observation/models"
	"fieldbook/internal/observation/store"
	"fieldbook/internal/platform/logger"
	"fieldbook/internal/recognition"
	"fieldbook/internal/recognition/mocks"
	"fieldbook/internal/session"
	"fieldbook/pkg/domain"
	dErrors "fieldbook/pkg/domain-errors"
)

// Prometheus collectors register once per test binary.
var engineMetrics = metrics.New()

type EngineSuite struct {
	suite.Suite
	ctx       context.Context
	ctrl      *gomock.Controller
	store     *store.InMemory
	publisher *mocks.MockPublisher
	engine    *Engine
	sess      session.Session
	clock     time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.ctrl = gomock.NewController(s.T())
	s.store = store.NewInMemory()
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.engine = New(s.store, s.publisher, engineMetrics, logger.Discard())
	s.clock = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.engine.now = func() time.Time { return s.clock }
	s.sess = session.Session{AccountID: domain.AccountID(uuid.New())}
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EngineSuite) goodSuggestions() []models.Suggestion {
	return []models.Suggestion{
		{SpeciesID: "turdus-merula", DisplayName: "Blackbird", ScientificName: "Turdus merula", Confidence: 0.91, Category: domain.CategoryAnimal},
		{SpeciesID: "sturnus-vulgaris", DisplayName: "Starling", ScientificName: "Sturnus vulgaris", Confidence: 0.42, Category: domain.CategoryAnimal},
	}
}

func (s *EngineSuite) createAnalyzing() *models.Observation {
	s.publisher.EXPECT().PublishRequest(gomock.Any(), gomock.Any()).Return(nil)
	obs, err := s.engine.Create(s.ctx, s.sess,
		models.ImageRef{StorageRef: "img/" + uuid.NewString()},
		models.Location{Enabled: true, Label: "Black Forest"})
	s.Require().NoError(err)
	s.Require().Equal(models.StatusAnalyzing, obs.Status)
	return obs
}

func (s *EngineSuite) TestCreatePublishesAndAdvances() {
	var published recognition.Request
	s.publisher.EXPECT().
		PublishRequest(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, req recognition.Request) error {
			published = req
			return nil
		})

	obs, err := s.engine.Create(s.ctx, s.sess,
		models.ImageRef{StorageRef: "img/7", AccessURL: "https://img/7"},
		models.Location{Enabled: false, Label: "should be dropped"})
	s.Require().NoError(err)

	s.Equal(models.StatusAnalyzing, obs.Status)
	s.Equal(obs.ID.String(), published.ObservationID)
	s.Equal("img/7", published.ImageRef)
	s.Empty(obs.Location.Label)
}

func (s *EngineSuite) TestCreateSurvivesPublishFailure() {
	s.publisher.EXPECT().
		PublishRequest(gomock.Any(), gomock.Any()).
		Return(errors.New("broker down"))

	obs, err := s.engine.Create(s.ctx, s.sess,
		models.ImageRef{StorageRef: "img/8"}, models.Location{})
	s.Require().NoError(err)
	s.Equal(models.StatusUploaded, obs.Status)

	stored, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusUploaded, stored.Status)
}

func (s *EngineSuite) TestCreateRejectsMissingImage() {
	_, err := s.engine.Create(s.ctx, s.sess, models.ImageRef{}, models.Location{})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *EngineSuite) TestApplyRecognitionHappyPath() {
	obs := s.createAnalyzing()

	err := s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Suggestions: s.goodSuggestions()})
	s.Require().NoError(err)

	stored, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusReadyForReview, stored.Status)
	s.Require().Len(stored.Suggestions, 2)
	s.Equal(domain.SpeciesID("turdus-merula"), stored.Suggestions[0].SpeciesID)
}

func (s *EngineSuite) TestApplyRecognitionFailureOutcome() {
	obs := s.createAnalyzing()

	s.Require().NoError(s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Failed: true}))

	stored, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, stored.Status)
}

func (s *EngineSuite) TestApplyRecognitionIsIdempotent() {
	obs := s.createAnalyzing()
	outcome := Outcome{Suggestions: s.goodSuggestions()}
	s.Require().NoError(s.engine.ApplyRecognition(s.ctx, obs.ID, outcome))

	// A redelivered callback is acknowledged and changes nothing.
	before, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.engine.ApplyRecognition(s.ctx, obs.ID, outcome))
	after, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(before.UpdatedAt, after.UpdatedAt)
	s.Equal(before.Suggestions, after.Suggestions)
}

func (s *EngineSuite) TestApplyRecognitionIgnoresDeletedRecord() {
	obs := s.createAnalyzing()
	s.Require().NoError(s.engine.Discard(s.ctx, s.sess, obs.ID))

	s.Require().NoError(s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Suggestions: s.goodSuggestions()}))

	stored, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDeleted, stored.Status)
	s.Empty(stored.Suggestions)
}

func (s *EngineSuite) TestApplyRecognitionStaleAfterFailure() {
	obs := s.createAnalyzing()
	s.Require().NoError(s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Failed: true}))

	// Results arriving after the record already failed can no longer apply.
	err := s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Suggestions: s.goodSuggestions()})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStaleTransition))
}

func (s *EngineSuite) TestApplyRecognitionValidatesSuggestions() {
	obs := s.createAnalyzing()

	err := s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Suggestions: []models.Suggestion{
		{SpeciesID: "x", Confidence: 1.5, Category: domain.CategoryPlant},
	}})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))

	stored, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAnalyzing, stored.Status)
}

func (s *EngineSuite) TestApplyRecognitionUnknownObservation() {
	err := s.engine.ApplyRecognition(s.ctx, domain.NewObservationID(), Outcome{Failed: true})
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestGetHidesForeignRecords() {
	obs := s.createAnalyzing()

	_, err := s.engine.Get(s.ctx, session.Session{AccountID: domain.AccountID(uuid.New())}, obs.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	got, err := s.engine.Get(s.ctx, s.sess, obs.ID)
	s.Require().NoError(err)
	s.Equal(obs.ID, got.ID)
}

func (s *EngineSuite) TestDiscard() {
	obs := s.createAnalyzing()

	s.Require().NoError(s.engine.Discard(s.ctx, s.sess, obs.ID))
	stored, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusDeleted, stored.Status)

	// Deleting twice is stale, not a success.
	err = s.engine.Discard(s.ctx, s.sess, obs.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStaleTransition))
}

func (s *EngineSuite) TestDiscardForeignRecord() {
	obs := s.createAnalyzing()

	err := s.engine.Discard(s.ctx, session.Session{AccountID: domain.AccountID(uuid.New())}, obs.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EngineSuite) TestDiscardRejectedForFailedRecord() {
	obs := s.createAnalyzing()
	s.Require().NoError(s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Failed: true}))

	err := s.engine.Discard(s.ctx, s.sess, obs.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeStaleTransition))
}

func (s *EngineSuite) TestPurgeFailedRecord() {
	obs := s.createAnalyzing()
	s.Require().NoError(s.engine.ApplyRecognition(s.ctx, obs.ID, Outcome{Failed: true}))

	s.Require().NoError(s.engine.Purge(s.ctx, s.sess, obs.ID))
	_, err := s.store.FindByID(s.ctx, obs.ID)
	s.Require().Error(err)
}

func (s *EngineSuite) TestPurgeRejectedForAdvancedRecord() {
	obs := s.createAnalyzing()

	err := s.engine.Purge(s.ctx, s.sess, obs.ID)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))
}

func (s *EngineSuite) TestSweepOnceTimesOutStuckAnalysis() {
	stuck := s.createAnalyzing()
	s.clock = s.clock.Add(5 * time.Minute)
	fresh := s.createAnalyzing()

	swept, err := s.engine.SweepOnce(s.ctx, 2*time.Minute)
	s.Require().NoError(err)
	s.Equal(1, swept)

	stored, err := s.store.FindByID(s.ctx, stuck.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFailed, stored.Status)

	stored, err = s.store.FindByID(s.ctx, fresh.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAnalyzing, stored.Status)
}
