package session

import (
	"context"
	"strings"
	"sync"
	"time"

	"docuexplore/internal/apperr"
	"docuexplore/internal/logger"
	"docuexplore/internal/models"
	"docuexplore/internal/service/assistant"
	"docuexplore/internal/service/docai"
)

const (
	SeedPrompt        = "What is the main topic or subject of this PDF? Provide a brief summary in 2-3 sentences."
	SummaryRequest    = "Provide the summary."
	SearchQueryPrefix = "Articles related to: "
	SearchWarning     = "Unable to fetch related articles. Please check the logs for more information."
	InterruptedError  = "Processing of the previous upload was interrupted. Please upload the document again."
)

// DocumentAI is the document-aware chat model.
type DocumentAI interface {
	Upload(ctx context.Context, fileName string, data []byte) (*models.Document, error)
	PollUntilActive(ctx context.Context, doc *models.Document) error
	StartConversation(ctx context.Context, doc *models.Document, seedPrompt string) (*docai.Conversation, error)
	SendTurn(ctx context.Context, conv *docai.Conversation, text string) (string, error)
}

type TitleGenerator interface {
	TitleFromSummary(ctx context.Context, summary string) assistant.TitleResult
}

type Searcher interface {
	Search(ctx context.Context, query string) (*models.SearchResultSet, error)
}

// Services bundles the external collaborators shared by all sessions.
type Services struct {
	Documents DocumentAI
	Titles    TitleGenerator
	Search    Searcher
}

// UploadRequest is a validated PDF ready to be ingested.
type UploadRequest struct {
	FileName string
	Data     []byte
	Pages    int
}

// Orchestrator drives one session from upload to interactive Q&A.
// Upload, Ask and Reset must not run concurrently; Snapshot may be called at any time.
type Orchestrator struct {
	id   string
	svc  Services
	log  *logger.Logger
	now  func() time.Time
	mu   sync.RWMutex
	st   *State
	conv *docai.Conversation
}

func NewOrchestrator(id string, svc Services, log *logger.Logger) *Orchestrator {
	o := &Orchestrator{
		id:  id,
		svc: svc,
		log: logger.OrNop(log).With("session_id", id),
		now: func() time.Time { return time.Now().UTC() },
	}
	o.st = newState(o.now())
	return o
}

func (o *Orchestrator) ID() string { return o.id }

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() models.SessionView {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.st.view(o.id)
}

// Restore replaces the state with a stored snapshot. A snapshot taken in the
// middle of ingestion cannot be continued and is marked FAILED.
func (o *Orchestrator) Restore(v models.SessionView) {
	st := stateFromView(v)
	var conv *docai.Conversation
	switch {
	case st.Phase.Busy():
		st.Phase = models.PhaseFailed
		st.Error = InterruptedError
	case st.Phase == models.PhaseReady && st.Document.Active() && len(st.Turns) > 0:
		conv = &docai.Conversation{
			Document: cloneDocument(st.Document),
			Turns:    append([]models.Turn(nil), st.Turns...),
		}
	case st.Phase == models.PhaseReady:
		st.Phase = models.PhaseFailed
		st.Error = InterruptedError
	}
	o.mu.Lock()
	o.st = st
	o.conv = conv
	o.mu.Unlock()
}

// Reset discards the document and everything derived from it.
func (o *Orchestrator) Reset() {
	o.update(func(s *State) { s.reset() })
	o.conv = nil
}

// Upload runs the ingestion pipeline for a new document. It returns the fatal
// error that moved the session to FAILED, if any. Title and search failures
// are recorded as warnings and do not fail the pipeline.
func (o *Orchestrator) Upload(ctx context.Context, req UploadRequest) error {
	o.conv = nil
	o.update(func(s *State) {
		s.reset()
		s.Phase = models.PhaseUploading
		s.Document = &models.Document{
			FileName: req.FileName,
			Size:     int64(len(req.Data)),
			Pages:    req.Pages,
			MimeType: models.PDFMimeType,
			State:    models.DocumentPending,
		}
	})
	o.log.Info("ingestion started", "file_name", req.FileName, "pages", req.Pages)

	doc, err := o.svc.Documents.Upload(ctx, req.FileName, req.Data)
	if err != nil {
		return o.fail(err)
	}
	doc.Pages = req.Pages
	o.update(func(s *State) {
		s.Phase = models.PhaseWaitingActive
		s.Document = cloneDocument(doc)
	})

	if err := o.svc.Documents.PollUntilActive(ctx, doc); err != nil {
		o.update(func(s *State) { s.Document = cloneDocument(doc) })
		return o.fail(err)
	}
	o.update(func(s *State) {
		s.Phase = models.PhaseSummarizing
		s.Document = cloneDocument(doc)
	})

	conv, err := o.svc.Documents.StartConversation(ctx, doc, SeedPrompt)
	if err != nil {
		return o.fail(err)
	}
	summary, err := o.svc.Documents.SendTurn(ctx, conv, SummaryRequest)
	if err != nil {
		return o.fail(err)
	}
	o.conv = conv
	o.update(func(s *State) {
		s.Phase = models.PhaseEnriching
		s.Summary = summary
		s.Turns = append([]models.Turn(nil), conv.Turns...)
	})

	title := o.svc.Titles.TitleFromSummary(ctx, summary)
	o.update(func(s *State) {
		s.Title = title.Title
		if title.Err != nil {
			s.TitleWarning = apperr.Message(title.Err)
		}
	})

	results, err := o.svc.Search.Search(ctx, SearchQueryPrefix+title.Title)
	if err != nil {
		o.log.Warn("related articles unavailable", "error", err)
	}
	o.update(func(s *State) {
		s.Search = results
		if results == nil {
			s.SearchWarning = SearchWarning
		}
		s.Phase = models.PhaseReady
	})
	o.log.Info("ingestion finished", "title", title.Title, "fallback_title", title.Fallback, "search", results != nil)
	return nil
}

// Ask sends one question about the active document. The question is always
// recorded; on failure it carries the error and the session stays READY.
func (o *Orchestrator) Ask(ctx context.Context, question string) (models.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Message{}, apperr.New(apperr.KindValidation, "question must not be empty", nil)
	}

	o.mu.Lock()
	if o.st.Phase != models.PhaseReady || o.conv == nil {
		o.mu.Unlock()
		return models.Message{}, apperr.New(apperr.KindNotReady, "upload a document before asking questions", nil)
	}
	o.st.History = append(o.st.History, models.Message{Role: models.RoleUser, Content: question, CreatedAt: o.now()})
	userIdx := len(o.st.History) - 1
	o.st.UpdatedAt = o.now()
	o.mu.Unlock()

	reply, err := o.svc.Documents.SendTurn(ctx, o.conv, question)
	if err != nil {
		o.log.Warn("chat turn failed", "error", err)
		o.update(func(s *State) {
			if userIdx < len(s.History) {
				s.History[userIdx].Error = apperr.Message(err)
			}
		})
		return models.Message{}, err
	}

	answer := models.Message{Role: models.RoleAssistant, Content: reply, CreatedAt: o.now()}
	o.update(func(s *State) {
		s.History = append(s.History, answer)
		s.Turns = append([]models.Turn(nil), o.conv.Turns...)
	})
	return answer, nil
}

func (o *Orchestrator) fail(err error) error {
	o.log.Error("ingestion failed", "error", err)
	o.conv = nil
	o.update(func(s *State) {
		s.Phase = models.PhaseFailed
		s.Error = apperr.Message(err)
		if s.Document != nil && s.Document.State != models.DocumentActive {
			s.Document.State = models.DocumentFailed
		}
	})
	return err
}

func (o *Orchestrator) update(fn func(s *State)) {
	o.mu.Lock()
	fn(o.st)
	o.st.UpdatedAt = o.now()
	o.mu.Unlock()
}
