package detector

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"detectorgo/internal/identity"
	"detectorgo/internal/models"
)

type memUsers struct {
	mu        sync.Mutex
	rows      map[string]models.User
	inserts   int
	createErr error
	dropAll   bool
}

func newMemUsers() *memUsers { return &memUsers{rows: map[string]models.User{}} }

func (m *memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (m *memUsers) Create(ctx context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.rows[u.ID]; ok {
		return errors.New("duplicate id")
	}
	m.rows[u.ID] = u
	m.inserts++
	return nil
}

func (m *memUsers) CreateIfAbsent(ctx context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dropAll {
		return nil
	}
	if _, ok := m.rows[u.ID]; ok {
		return nil
	}
	m.rows[u.ID] = u
	m.inserts++
	return nil
}

func (m *memUsers) UsernameExists(ctx context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.rows {
		if u.Username != nil && *u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *memUsers) List(ctx context.Context) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.User, 0, len(m.rows))
	for _, u := range m.rows {
		out = append(out, u)
	}
	return out, nil
}

type memPredictions struct {
	rows []models.Prediction
	err  error
}

func (m *memPredictions) Create(ctx context.Context, p models.Prediction) error {
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, p)
	return nil
}

func (m *memPredictions) Exists(ctx context.Context, id string) (bool, error) {
	for _, p := range m.rows {
		if p.ID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *memPredictions) ListByUser(ctx context.Context, userID string) ([]models.Prediction, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []models.Prediction
	for _, p := range m.rows {
		if p.UserID != nil && *p.UserID == userID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memPredictions) ListAll(ctx context.Context) ([]models.PredictionRecord, error) {
	out := make([]models.PredictionRecord, 0, len(m.rows))
	for _, p := range m.rows {
		out = append(out, models.PredictionRecord{Prediction: p})
	}
	return out, nil
}

func (m *memPredictions) ListOutputs(ctx context.Context) ([]models.Prediction, error) {
	return m.rows, nil
}

func (m *memPredictions) Count(ctx context.Context) (int, error) { return len(m.rows), nil }

type memFeedbacks struct {
	rows    []models.Feedback
	listErr error
	listed  int
	// skew inflates the correct count to mimic a torn read.
	skew int
}

func (m *memFeedbacks) Create(ctx context.Context, f models.Feedback) error {
	m.rows = append(m.rows, f)
	return nil
}

func (m *memFeedbacks) ListByPredictions(ctx context.Context, ids []string) ([]models.Feedback, error) {
	m.listed++
	if m.listErr != nil {
		return nil, m.listErr
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []models.Feedback
	for _, f := range m.rows {
		if want[f.PredictionID] {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *memFeedbacks) Count(ctx context.Context) (int, error) { return len(m.rows), nil }

func (m *memFeedbacks) Tally(ctx context.Context) (int, int, error) {
	if m.skew != 0 {
		return len(m.rows), len(m.rows) + m.skew, nil
	}
	n := 0
	for _, f := range m.rows {
		if f.IsCorrect {
			n++
		}
	}
	return len(m.rows), n, nil
}

type stubClassifier struct {
	label models.Label
	err   error
	seen  []string
}

func (c *stubClassifier) Classify(ctx context.Context, text string) (models.Label, error) {
	c.seen = append(c.seen, text)
	return c.label, c.err
}

func (c *stubClassifier) ModelName() string { return "roberta-base-openai-detector" }

type stubExtractor struct {
	text string
	err  error
}

func (e stubExtractor) ExtractPDF(ctx context.Context, r io.Reader) (string, error) {
	return e.text, e.err
}

type stubArchive struct {
	keys []string
	err  error
}

func (a *stubArchive) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if a.err != nil {
		return a.err
	}
	a.keys = append(a.keys, key)
	return nil
}

type stubIdentities struct {
	signedUp []string
	deleted  []string
}

func (s *stubIdentities) SignUp(ctx context.Context, email, password string) (identity.Identity, error) {
	id := "id-" + email
	s.signedUp = append(s.signedUp, id)
	return identity.Identity{ID: id, Email: email}, nil
}

func (s *stubIdentities) SignIn(ctx context.Context, email, password string) (identity.Session, error) {
	return identity.Session{AccessToken: "tok-" + email, Identity: identity.Identity{ID: "id-" + email, Email: email}}, nil
}

func (s *stubIdentities) SignOut(ctx context.Context, token string) error { return nil }

func (s *stubIdentities) GetUser(ctx context.Context, token string) (identity.Identity, error) {
	return identity.Identity{}, identity.ErrInvalidToken
}

func (s *stubIdentities) DeleteIdentity(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

type fixture struct {
	svc         *Service
	users       *memUsers
	predictions *memPredictions
	feedbacks   *memFeedbacks
	classifier  *stubClassifier
	identities  *stubIdentities
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		users:       newMemUsers(),
		predictions: &memPredictions{},
		feedbacks:   &memFeedbacks{},
		classifier:  &stubClassifier{label: models.Label{Label: "Fake", Score: 0.97}},
		identities:  &stubIdentities{},
	}
	f.svc = NewService(Deps{
		Users:       f.users,
		Predictions: f.predictions,
		Feedbacks:   f.feedbacks,
		Identities:  f.identities,
		Classifier:  f.classifier,
		Extractor:   stubExtractor{text: "pdf body"},
		Logger:      zerolog.Nop(),
	})
	var clockMu sync.Mutex
	clock := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	}
	return f
}

func TestEnsureProfileCreatesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ident := identity.Identity{ID: "u1", Email: "u1@example.com"}

	first, err := f.svc.EnsureProfile(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, first.Role)
	assert.Equal(t, "u1@example.com", first.Email)

	second, err := f.svc.EnsureProfile(ctx, ident)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.users.inserts)
}

func TestEnsureProfileConcurrentFirstRequests(t *testing.T) {
	f := newFixture(t)
	ident := identity.Identity{ID: "racer", Email: "racer@example.com"}

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.EnsureProfile(context.Background(), ident)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.users.rows, 1)
}

func TestEnsureProfileMissingAfterInsert(t *testing.T) {
	f := newFixture(t)
	f.users.dropAll = true
	_, err := f.svc.EnsureProfile(context.Background(), identity.Identity{ID: "ghost", Email: "g@example.com"})
	assert.ErrorIs(t, err, ErrProfileMissing)
}

func TestPredictRecordsNormalizedInput(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Predict(context.Background(), "u1", "  some  hyphen-\nated   text ")
	require.NoError(t, err)
	require.Len(t, f.predictions.rows, 1)

	rec := f.predictions.rows[0]
	assert.Equal(t, res.ID, rec.ID)
	assert.Equal(t, "some hyphenated text", rec.InputData)
	assert.Equal(t, []string{"some hyphenated text"}, f.classifier.seen)
	assert.Equal(t, "roberta-base-openai-detector", rec.ModelName)
	require.NotNil(t, rec.UserID)
	assert.Equal(t, "u1", *rec.UserID)

	var stored []models.Label
	require.NoError(t, json.Unmarshal([]byte(rec.OutputData), &stored))
	assert.Equal(t, res.Labels, stored)
	assert.Equal(t, "Fake", res.Labels[0].Label)
}

func TestPredictRejectsEmptyText(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Predict(context.Background(), "u1", " \n\t ")
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, f.classifier.seen)
	assert.Empty(t, f.predictions.rows)
}

func TestPredictClassifierFailureRecordsNothing(t *testing.T) {
	f := newFixture(t)
	f.classifier.err = errors.New("model offline")
	_, err := f.svc.Predict(context.Background(), "u1", "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model offline")
	assert.Empty(t, f.predictions.rows)
}

func TestPredictDocumentArchivesSource(t *testing.T) {
	f := newFixture(t)
	archive := &stubArchive{}
	f.svc.archive = archive

	res, err := f.svc.PredictDocument(context.Background(), "u1", "essay.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	require.Len(t, archive.keys, 1)
	rec := f.predictions.rows[0]
	assert.Equal(t, res.ID, rec.ID)
	assert.Equal(t, "pdf body", rec.InputData)
	require.NotNil(t, rec.SourceDocument)
	assert.Equal(t, archive.keys[0], *rec.SourceDocument)
}

func TestPredictDocumentArchiveFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.svc.archive = &stubArchive{err: errors.New("bucket unavailable")}

	_, err := f.svc.PredictDocument(context.Background(), "u1", "essay.pdf", []byte("%PDF-1.4"))
	require.NoError(t, err)
	assert.Nil(t, f.predictions.rows[0].SourceDocument)
}

func TestPredictDocumentWithoutText(t *testing.T) {
	f := newFixture(t)
	f.svc.extractor = stubExtractor{text: "   "}
	_, err := f.svc.PredictDocument(context.Background(), "u1", "blank.pdf", []byte("%PDF-1.4"))
	assert.ErrorIs(t, err, ErrEmptyInput)
	assert.Empty(t, f.predictions.rows)
}

func TestListUserPredictionsJoinsFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first, err := f.svc.Predict(ctx, "u1", "first text")
	require.NoError(t, err)
	second, err := f.svc.Predict(ctx, "u1", "second text")
	require.NoError(t, err)
	_, err = f.svc.Predict(ctx, "u2", "someone else")
	require.NoError(t, err)

	_, err = f.svc.SubmitFeedback(ctx, "u1", first.ID, true, nil)
	require.NoError(t, err)

	got, err := f.svc.ListUserPredictions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, second.ID, got[0].ID)
	assert.Nil(t, got[0].FeedbackIsCorrect)
	assert.Equal(t, first.ID, got[1].ID)
	require.NotNil(t, got[1].FeedbackIsCorrect)
	assert.True(t, *got[1].FeedbackIsCorrect)
	assert.Equal(t, "", *got[1].FeedbackComment)
}

func TestListUserPredictionsDegradesOnFeedbackFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Predict(ctx, "u1", "text")
	require.NoError(t, err)
	_, err = f.svc.SubmitFeedback(ctx, "u1", p.ID, false, nil)
	require.NoError(t, err)

	f.feedbacks.listErr = errors.New("feedback table unavailable")
	got, err := f.svc.ListUserPredictions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].FeedbackIsCorrect)
	assert.Nil(t, got[0].FeedbackCreatedAt)
	assert.Nil(t, got[0].FeedbackComment)
}

func TestListUserPredictionsEmptySkipsFeedbackLookup(t *testing.T) {
	f := newFixture(t)
	got, err := f.svc.ListUserPredictions(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	assert.Equal(t, 0, f.feedbacks.listed)
}

func TestListUserPredictionsFailsOnPredictionError(t *testing.T) {
	f := newFixture(t)
	f.predictions.err = errors.New("db down")
	_, err := f.svc.ListUserPredictions(context.Background(), "u1")
	assert.Error(t, err)
}

func TestSubmitFeedback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, err := f.svc.Predict(ctx, "u1", "text")
	require.NoError(t, err)

	comment := "looks right"
	fb, err := f.svc.SubmitFeedback(ctx, "u1", p.ID, true, &comment)
	require.NoError(t, err)
	assert.Equal(t, p.ID, fb.PredictionID)
	assert.Equal(t, "u1", fb.UserID)
	assert.Equal(t, "looks right", fb.Content)
	assert.NotEmpty(t, fb.ID)

	_, err = f.svc.SubmitFeedback(ctx, "u1", "00000000-0000-0000-0000-000000000000", true, nil)
	assert.ErrorIs(t, err, ErrPredictionNotFound)
	assert.Len(t, f.feedbacks.rows, 1)
}

func TestAccuracyAndCounts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	acc, err := f.svc.Accuracy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acc)

	p, err := f.svc.Predict(ctx, "u1", "text")
	require.NoError(t, err)
	for _, ok := range []bool{true, true, false, true} {
		_, err := f.svc.SubmitFeedback(ctx, "u1", p.ID, ok, nil)
		require.NoError(t, err)
	}

	acc, err = f.svc.Accuracy(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, acc, 1e-9)

	n, err := f.svc.FeedbackCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = f.svc.PredictionCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAccuracyNeverExceedsOne(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	p, err := f.svc.Predict(ctx, "u1", "text")
	require.NoError(t, err)
	_, err = f.svc.SubmitFeedback(ctx, "u1", p.ID, true, nil)
	require.NoError(t, err)
	f.feedbacks.skew = 2

	acc, err := f.svc.Accuracy(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Predict(ctx, "u1", "one")
	require.NoError(t, err)
	f.classifier.label = models.Label{Label: "Real", Score: 0.6}
	_, err = f.svc.Predict(ctx, "u1", "two")
	require.NoError(t, err)

	got, err := f.svc.History(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.DailyLabelCount{{Date: "2024-06-01", Real: 1, Fake: 1}}, got)
}

func TestRegisterRollsBackIdentity(t *testing.T) {
	f := newFixture(t)
	f.users.createErr = errors.New("insert failed")

	err := f.svc.Register(context.Background(), "new@example.com", "secret1", nil)
	require.ErrorIs(t, err, ErrProfileCreate)
	assert.Equal(t, f.identities.signedUp, f.identities.deleted)
}

func TestRegisterRejectsTakenUsername(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	name := "alice"
	require.NoError(t, f.svc.Register(ctx, "a@example.com", "secret1", &name))

	other := " alice "
	err := f.svc.Register(ctx, "b@example.com", "secret1", &other)
	assert.ErrorIs(t, err, ErrUsernameTaken)
	assert.Len(t, f.identities.signedUp, 1)
}

func TestSignInReportsRole(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	token, role, err := f.svc.SignIn(ctx, "x@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "tok-x@example.com", token)
	assert.Equal(t, models.RoleUser, role)

	f.users.rows["id-x@example.com"] = models.User{ID: "id-x@example.com", Email: "x@example.com", Role: models.RoleAdmin}
	_, role, err = f.svc.SignIn(ctx, "x@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, role)
}
