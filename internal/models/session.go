package models

import "time"

// Phase is the orchestrator state of one user session.
type Phase string

const (
	PhaseNoDocument    Phase = "NO_DOCUMENT"
	PhaseUploading     Phase = "UPLOADING"
	PhaseWaitingActive Phase = "WAITING_ACTIVE"
	PhaseSummarizing   Phase = "SUMMARIZING"
	PhaseEnriching     Phase = "ENRICHING"
	PhaseReady         Phase = "READY"
	PhaseFailed        Phase = "FAILED"
)

// Busy reports whether the ingestion pipeline is still running.
func (p Phase) Busy() bool {
	switch p {
	case PhaseUploading, PhaseWaitingActive, PhaseSummarizing, PhaseEnriching:
		return true
	default:
		return false
	}
}

// SessionView is the read-only snapshot rendered by the presentation layer
// and cached by the session store.
type SessionView struct {
	ID            string           `json:"id"`
	Phase         Phase            `json:"phase"`
	Document      *Document        `json:"document,omitempty"`
	Summary       string           `json:"summary,omitempty"`
	Title         string           `json:"title,omitempty"`
	Search        *SearchResultSet `json:"search,omitempty"`
	SearchWarning string           `json:"search_warning,omitempty"`
	TitleWarning  string           `json:"title_warning,omitempty"`
	Error         string           `json:"error,omitempty"`
	History       []Message        `json:"history"`
	Conversation  []Turn           `json:"conversation,omitempty"`
	Pending       bool             `json:"pending"`
	UpdatedAt     time.Time        `json:"updated_at"`
}
