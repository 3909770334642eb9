// Package wizard is the discovery wizard as a state machine: it collects
// preferences step by step, asks the recommendation service for results
// and rolls back to the last input step when that call fails.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/joshuamichael7/whattowatch-sub004/internal/auth"
	"github.com/joshuamichael7/whattowatch-sub004/internal/logger"
	"github.com/joshuamichael7/whattowatch-sub004/internal/recommend"
)

type Step string

const (
	StepMode        Step = "mode"
	StepGenres      Step = "genres"
	StepMood        Step = "mood"
	StepViewingTime Step = "viewing_time"
	StepContent     Step = "content"
	StepLoading     Step = "loading"
	StepResults     Step = "results"
)

type Mode string

const (
	ModeQuiz  Mode = "quiz"
	ModeSaved Mode = "saved"
)

var (
	ErrInvalidStep        = errors.New("wizard: action not allowed at this step")
	ErrInvalidAnswer      = errors.New("wizard: invalid answer")
	ErrNoSavedPreferences = errors.New("wizard: no saved preferences")
)

// Banner texts shown after a failed Submit.
const (
	msgRecommendationsFailed = "We couldn't get recommendations right now. Please try again."
	msgServiceUnavailable    = "The recommendation service is temporarily unavailable. Please try again in a minute."
)

// Answer carries the input for one step; only the fields of that step
// are read.
type Answer struct {
	Mode            Mode     `json:"mode,omitempty" validate:"omitempty,oneof=quiz"`
	Genres          []string `json:"genres,omitempty" validate:"omitempty,max=5,dive,required,max=40"`
	Moods           []string `json:"moods,omitempty" validate:"omitempty,max=3,dive,required,max=40"`
	ViewingTime     int      `json:"viewing_time,omitempty" validate:"omitempty,min=15,max=600"`
	FavoriteContent []string `json:"favorite_content,omitempty" validate:"omitempty,max=10,dive,required,max=200"`
	AvoidContent    []string `json:"avoid_content,omitempty" validate:"omitempty,max=10,dive,required,max=200"`
}

// State is a copy of a Machine.
type State struct {
	Step        Step             `json:"step"`
	Mode        Mode             `json:"mode,omitempty"`
	Preferences auth.Preferences `json:"preferences"`
	Results     []recommend.Item `json:"results,omitempty"`
	Error       string           `json:"error,omitempty"`
}

func (s State) Loading() bool { return s.Step == StepLoading }

var validate = validator.New()

// Machine is one user's wizard.
type Machine struct {
	mu       sync.Mutex
	step     Step
	prev     Step
	mode     Mode
	prefs    auth.Preferences
	results  []recommend.Item
	errorMsg string
	// run changes on Reset so an in-flight Submit cannot write back.
	run uint64
}

func NewMachine() *Machine {
	return &Machine{step: StepMode}
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked()
}

func (m *Machine) stateLocked() State {
	return State{
		Step:        m.step,
		Mode:        m.mode,
		Preferences: clonePrefs(m.prefs),
		Results:     append([]recommend.Item(nil), m.results...),
		Error:       m.errorMsg,
	}
}

// Answer records a for step and advances. step must be the current step.
func (m *Machine) Answer(step Step, a Answer) (State, error) {
	if err := validate.Struct(a); err != nil {
		return m.State(), fmt.Errorf("%w: %v", ErrInvalidAnswer, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if step != m.step {
		return m.stateLocked(), fmt.Errorf("%w: answering %s at %s", ErrInvalidStep, step, m.step)
	}

	switch step {
	case StepMode:
		if a.Mode != ModeQuiz {
			return m.stateLocked(), fmt.Errorf("%w: mode must be %q", ErrInvalidAnswer, ModeQuiz)
		}
		m.mode = ModeQuiz
		m.step = StepGenres
	case StepGenres:
		if len(a.Genres) == 0 {
			return m.stateLocked(), fmt.Errorf("%w: pick at least one genre", ErrInvalidAnswer)
		}
		m.prefs.Genres = append([]string(nil), a.Genres...)
		m.step = StepMood
	case StepMood:
		if len(a.Moods) == 0 {
			return m.stateLocked(), fmt.Errorf("%w: pick at least one mood", ErrInvalidAnswer)
		}
		m.prefs.Moods = append([]string(nil), a.Moods...)
		m.step = StepViewingTime
	case StepViewingTime:
		if a.ViewingTime == 0 {
			return m.stateLocked(), fmt.Errorf("%w: viewing time is required", ErrInvalidAnswer)
		}
		m.prefs.ViewingTime = a.ViewingTime
		m.step = StepContent
	case StepContent:
		// Content is optional; the step stays put until Submit.
		m.prefs.FavoriteContent = append([]string(nil), a.FavoriteContent...)
		m.prefs.AvoidContent = append([]string(nil), a.AvoidContent...)
	default:
		return m.stateLocked(), fmt.Errorf("%w: %s takes no answer", ErrInvalidStep, step)
	}

	m.errorMsg = ""
	return m.stateLocked(), nil
}

// UseSaved fills the wizard from prefs and jumps to the content step.
func (m *Machine) UseSaved(prefs *auth.Preferences) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.step == StepLoading {
		return m.stateLocked(), ErrInvalidStep
	}
	if prefs.IsEmpty() {
		return m.stateLocked(), ErrNoSavedPreferences
	}

	m.mode = ModeSaved
	m.prefs = clonePrefs(*prefs)
	m.results = nil
	m.errorMsg = ""
	m.step = StepContent
	return m.stateLocked(), nil
}

// Back moves to the previous input step.
func (m *Machine) Back() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.step {
	case StepGenres:
		m.step = StepMode
	case StepMood:
		m.step = StepGenres
	case StepViewingTime:
		m.step = StepMood
	case StepContent:
		if m.mode == ModeSaved {
			m.step = StepMode
		} else {
			m.step = StepViewingTime
		}
	case StepResults:
		m.step = StepContent
	default:
		return m.stateLocked(), fmt.Errorf("%w: cannot go back from %s", ErrInvalidStep, m.step)
	}

	m.errorMsg = ""
	return m.stateLocked(), nil
}

// Submit asks svc for count recommendations from the collected answers.
// On failure the machine returns to the step it was submitted from with a
// dismissible error set, and the service error is returned.
func (m *Machine) Submit(ctx context.Context, svc recommend.Service, count int) (State, error) {
	m.mu.Lock()
	if m.step != StepContent {
		st := m.stateLocked()
		m.mu.Unlock()
		return st, fmt.Errorf("%w: submit at %s", ErrInvalidStep, st.Step)
	}
	m.prev = m.step
	m.step = StepLoading
	m.errorMsg = ""
	run := m.run
	prefs := clonePrefs(m.prefs)
	m.mu.Unlock()

	items, err := svc.PersonalizedRecommendations(ctx, prefs, count)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.run != run {
		return m.stateLocked(), nil
	}

	if err != nil {
		logger.Warn("wizard submit failed", map[string]any{
			"error": err.Error(),
		})
		m.step = m.prev
		if errors.Is(err, recommend.ErrUnavailable) {
			m.errorMsg = msgServiceUnavailable
		} else {
			m.errorMsg = msgRecommendationsFailed
		}
		return m.stateLocked(), err
	}

	m.results = append([]recommend.Item(nil), items...)
	m.step = StepResults
	return m.stateLocked(), nil
}

func (m *Machine) DismissError() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsg = ""
	return m.stateLocked()
}

// Reset starts over. A Submit still in flight is discarded.
func (m *Machine) Reset() State {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.run++
	m.step = StepMode
	m.prev = ""
	m.mode = ""
	m.prefs = auth.Preferences{}
	m.results = nil
	m.errorMsg = ""
	return m.stateLocked()
}

func clonePrefs(p auth.Preferences) auth.Preferences {
	return auth.Preferences{
		Genres:          append([]string(nil), p.Genres...),
		Moods:           append([]string(nil), p.Moods...),
		ViewingTime:     p.ViewingTime,
		FavoriteContent: append([]string(nil), p.FavoriteContent...),
		AvoidContent:    append([]string(nil), p.AvoidContent...),
		AgeRatings:      append([]string(nil), p.AgeRatings...),
		Language:        p.Language,
	}
}

// Store keeps one Machine per user.
type Store struct {
	mu       sync.Mutex
	machines map[string]*Machine
}

func NewStore() *Store {
	return &Store{machines: make(map[string]*Machine)}
}

func (s *Store) For(owner string) *Machine {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.machines[owner]
	if !ok {
		m = NewMachine()
		s.machines[owner] = m
	}
	return m
}

func (s *Store) Drop(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.machines, owner)
}
