package wizard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
)

type stubService struct {
	items []recommend.Item
	err   error
	got   auth.Preferences
	count int
	// hook runs inside the call, before it returns.
	hook func()
}

func (s *stubService) PersonalizedRecommendations(ctx context.Context, prefs auth.Preferences, count int) ([]recommend.Item, error) {
	s.got, s.count = prefs, count
	if s.hook != nil {
		s.hook()
	}
	return s.items, s.err
}

func (s *stubService) SimilarContentTitles(ctx context.Context, title, overview, mediaType string, count int) ([]recommend.Item, error) {
	return nil, errors.New("not used")
}

func quizToContent(t *testing.T, m *Machine) {
	t.Helper()

	steps := []struct {
		step Step
		a    Answer
	}{
		{StepMode, Answer{Mode: ModeQuiz}},
		{StepGenres, Answer{Genres: []string{"sci-fi"}}},
		{StepMood, Answer{Moods: []string{"tense"}}},
		{StepViewingTime, Answer{ViewingTime: 90}},
	}
	for _, s := range steps {
		_, err := m.Answer(s.step, s.a)
		require.NoError(t, err, s.step)
	}
	require.Equal(t, StepContent, m.State().Step)
}

func TestQuizFlowToResults(t *testing.T) {
	m := NewMachine()
	quizToContent(t, m)

	_, err := m.Answer(StepContent, Answer{FavoriteContent: []string{"Alien"}})
	require.NoError(t, err)

	svc := &stubService{items: []recommend.Item{{Title: "Arrival"}}}
	st, err := m.Submit(context.Background(), svc, 5)
	require.NoError(t, err)

	assert.Equal(t, StepResults, st.Step)
	assert.Equal(t, []recommend.Item{{Title: "Arrival"}}, st.Results)
	assert.Equal(t, 5, svc.count)
	assert.Equal(t, auth.Preferences{
		Genres:          []string{"sci-fi"},
		Moods:           []string{"tense"},
		ViewingTime:     90,
		FavoriteContent: []string{"Alien"},
	}, svc.got)
}

func TestAnswerRejectsWrongStepAndBadInput(t *testing.T) {
	m := NewMachine()

	_, err := m.Answer(StepGenres, Answer{Genres: []string{"drama"}})
	assert.ErrorIs(t, err, ErrInvalidStep)

	_, err = m.Answer(StepMode, Answer{Mode: ModeSaved})
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = m.Answer(StepMode, Answer{Mode: ModeQuiz})
	require.NoError(t, err)

	_, err = m.Answer(StepGenres, Answer{})
	assert.ErrorIs(t, err, ErrInvalidAnswer)

	_, err = m.Answer(StepGenres, Answer{Genres: []string{"a", "b", "c", "d", "e", "f"}})
	assert.ErrorIs(t, err, ErrInvalidAnswer)
	assert.Equal(t, StepGenres, m.State().Step)
}

func TestSubmitFailureRollsBackWithDismissibleError(t *testing.T) {
	m := NewMachine()
	quizToContent(t, m)

	boom := errors.New("upstream 500")
	st, err := m.Submit(context.Background(), &stubService{err: boom}, 5)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StepContent, st.Step)
	assert.Equal(t, msgRecommendationsFailed, st.Error)
	assert.Equal(t, []string{"sci-fi"}, st.Preferences.Genres, "answers survive the failure")

	st = m.DismissError()
	assert.Empty(t, st.Error)
	assert.Equal(t, StepContent, st.Step)
}

func TestSubmitUnavailableMessage(t *testing.T) {
	m := NewMachine()
	quizToContent(t, m)

	st, err := m.Submit(context.Background(), &stubService{err: recommend.ErrUnavailable}, 5)

	assert.ErrorIs(t, err, recommend.ErrUnavailable)
	assert.Equal(t, msgServiceUnavailable, st.Error)
}

func TestSubmitOnlyFromContentStep(t *testing.T) {
	m := NewMachine()

	_, err := m.Submit(context.Background(), &stubService{}, 5)
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestSubmitWhileLoadingIsRejected(t *testing.T) {
	m := NewMachine()
	quizToContent(t, m)

	var inner error
	svc := &stubService{items: []recommend.Item{{Title: "Dune"}}}
	svc.hook = func() {
		assert.True(t, m.State().Loading())
		_, inner = m.Submit(context.Background(), svc, 5)
	}

	_, err := m.Submit(context.Background(), svc, 5)
	require.NoError(t, err)
	assert.ErrorIs(t, inner, ErrInvalidStep)
}

func TestResetDiscardsInFlightSubmit(t *testing.T) {
	m := NewMachine()
	quizToContent(t, m)

	svc := &stubService{items: []recommend.Item{{Title: "Dune"}}}
	svc.hook = func() { m.Reset() }

	st, err := m.Submit(context.Background(), svc, 5)
	require.NoError(t, err)

	assert.Equal(t, StepMode, st.Step)
	assert.Empty(t, st.Results)
}

func TestUseSaved(t *testing.T) {
	m := NewMachine()

	_, err := m.UseSaved(nil)
	assert.ErrorIs(t, err, ErrNoSavedPreferences)
	_, err = m.UseSaved(&auth.Preferences{})
	assert.ErrorIs(t, err, ErrNoSavedPreferences)

	saved := &auth.Preferences{Genres: []string{"comedy"}, Language: "en"}
	st, err := m.UseSaved(saved)
	require.NoError(t, err)
	assert.Equal(t, StepContent, st.Step)
	assert.Equal(t, ModeSaved, st.Mode)
	assert.Equal(t, "en", st.Preferences.Language)

	saved.Genres[0] = "horror"
	assert.Equal(t, []string{"comedy"}, m.State().Preferences.Genres)

	st, err = m.Back()
	require.NoError(t, err)
	assert.Equal(t, StepMode, st.Step)
}

func TestBackWalksInputSteps(t *testing.T) {
	m := NewMachine()
	quizToContent(t, m)

	want := []Step{StepViewingTime, StepMood, StepGenres, StepMode}
	for _, w := range want {
		st, err := m.Back()
		require.NoError(t, err)
		assert.Equal(t, w, st.Step)
	}

	_, err := m.Back()
	assert.ErrorIs(t, err, ErrInvalidStep)
}

func TestStorePerOwner(t *testing.T) {
	s := NewStore()

	a := s.For("a")
	assert.Same(t, a, s.For("a"))
	assert.NotSame(t, a, s.For("b"))

	s.Drop("a")
	assert.NotSame(t, a, s.For("a"))
}
