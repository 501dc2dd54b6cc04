package session

import (
	"time"

	"docuexplore/internal/models"
)

// State is everything one user session knows about its current document.
// It is only touched under the Orchestrator lock.
type State struct {
	Phase         models.Phase
	Document      *models.Document
	Summary       string
	Title         string
	Search        *models.SearchResultSet
	SearchWarning string
	TitleWarning  string
	Error         string
	History       []models.Message
	Turns         []models.Turn
	UpdatedAt     time.Time
}

func newState(now time.Time) *State {
	return &State{Phase: models.PhaseNoDocument, History: []models.Message{}, UpdatedAt: now}
}

// reset clears every value derived from a previous upload.
func (s *State) reset() {
	s.Phase = models.PhaseNoDocument
	s.Document = nil
	s.Summary = ""
	s.Title = ""
	s.Search = nil
	s.SearchWarning = ""
	s.TitleWarning = ""
	s.Error = ""
	s.History = []models.Message{}
	s.Turns = nil
}

func (s *State) view(id string) models.SessionView {
	v := models.SessionView{
		ID:            id,
		Phase:         s.Phase,
		Document:      cloneDocument(s.Document),
		Summary:       s.Summary,
		Title:         s.Title,
		Search:        cloneResults(s.Search),
		SearchWarning: s.SearchWarning,
		TitleWarning:  s.TitleWarning,
		Error:         s.Error,
		History:       append([]models.Message{}, s.History...),
		UpdatedAt:     s.UpdatedAt,
	}
	if len(s.Turns) > 0 {
		v.Conversation = append([]models.Turn(nil), s.Turns...)
	}
	return v
}

func stateFromView(v models.SessionView) *State {
	s := &State{
		Phase:         v.Phase,
		Document:      cloneDocument(v.Document),
		Summary:       v.Summary,
		Title:         v.Title,
		Search:        cloneResults(v.Search),
		SearchWarning: v.SearchWarning,
		TitleWarning:  v.TitleWarning,
		Error:         v.Error,
		History:       append([]models.Message{}, v.History...),
		Turns:         append([]models.Turn(nil), v.Conversation...),
		UpdatedAt:     v.UpdatedAt,
	}
	if s.Phase == "" {
		s.Phase = models.PhaseNoDocument
	}
	return s
}

func cloneDocument(d *models.Document) *models.Document {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

func cloneResults(r *models.SearchResultSet) *models.SearchResultSet {
	if r == nil {
		return nil
	}
	c := *r
	c.Results = append([]models.SearchResult(nil), r.Results...)
	return &c
}
