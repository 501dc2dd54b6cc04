package docai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"docuexplore/internal/apperr"
	"docuexplore/internal/logger"
	"docuexplore/internal/models"
)

const (
	DefaultPollInterval = 2 * time.Second
	roleUser            = "user"
	roleModel           = "model"
)

type fileService interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
}

type chatSession interface {
	SendMessage(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type chatFactory func(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error)

// Options tune the document model and the processing wait.
type Options struct {
	Model             string
	Temperature       float32
	TopP              float32
	TopK              float32
	MaxOutputTokens   int32
	PollInterval      time.Duration
	ProcessingTimeout time.Duration
	TempDir           string
}

// Client talks to the Gemini files and chat APIs on behalf of one process.
type Client struct {
	files        fileService
	newChat      chatFactory
	model        string
	genCfg       *genai.GenerateContentConfig
	pollInterval time.Duration
	timeout      time.Duration
	tempDir      string
	sleep        func(context.Context, time.Duration) error
	log          *logger.Logger
}

// Conversation is the chat context anchored to one uploaded document.
type Conversation struct {
	Document *models.Document
	Turns    []models.Turn
	chat     chatSession
}

// New wires a Client on top of an existing genai client.
func New(client *genai.Client, opts Options, log *logger.Logger) (*Client, error) {
	if client == nil {
		return nil, errors.New("genai client is required")
	}
	chats := client.Chats
	factory := func(ctx context.Context, model string, config *genai.GenerateContentConfig, history []*genai.Content) (chatSession, error) {
		return chats.Create(ctx, model, config, history)
	}
	return newClient(client.Files, factory, opts, log), nil
}

func newClient(files fileService, factory chatFactory, opts Options, log *logger.Logger) *Client {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Model == "" {
		opts.Model = "gemini-1.5-pro"
	}
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(opts.Temperature),
		TopP:            genai.Ptr(opts.TopP),
		TopK:            genai.Ptr(opts.TopK),
		MaxOutputTokens: opts.MaxOutputTokens,
	}
	return &Client{
		files:        files,
		newChat:      factory,
		model:        opts.Model,
		genCfg:       genCfg,
		pollInterval: opts.PollInterval,
		timeout:      opts.ProcessingTimeout,
		tempDir:      opts.TempDir,
		sleep:        sleepContext,
		log:          logger.OrNop(log).With("component", "docai"),
	}
}

// Upload stages the PDF as a temporary file and sends it to the files API.
// The temporary file is removed whether or not the upload succeeds.
func (c *Client) Upload(ctx context.Context, fileName string, data []byte) (*models.Document, error) {
	tmp, err := os.CreateTemp(c.tempDir, stagedPattern)
	if err != nil {
		return nil, apperr.New(apperr.KindUploadTransport, "could not stage the uploaded file", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			c.log.Warn("remove staged upload failed", "path", tmpPath, "error", err)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, apperr.New(apperr.KindUploadTransport, "could not stage the uploaded file", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, apperr.New(apperr.KindUploadTransport, "could not stage the uploaded file", err)
	}

	c.log.Info("uploading document", "file_name", fileName, "size", len(data))
	file, err := c.files.UploadFromPath(ctx, tmpPath, &genai.UploadFileConfig{
		MIMEType:    models.PDFMimeType,
		DisplayName: fileName,
	})
	if err != nil {
		return nil, apperr.New(apperr.KindUploadTransport, "upload to the document service failed", err)
	}
	if file == nil || file.Name == "" {
		return nil, apperr.New(apperr.KindUploadTransport, "document service returned no file handle", nil)
	}

	mimeType := file.MIMEType
	if mimeType == "" {
		mimeType = models.PDFMimeType
	}
	return &models.Document{
		FileName:   fileName,
		Size:       int64(len(data)),
		RemoteName: file.Name,
		URI:        file.URI,
		MimeType:   mimeType,
		State:      documentState(file.State),
		UploadedAt: time.Now().UTC(),
	}, nil
}

// PollUntilActive blocks until the document leaves the processing state.
// It returns nil for ACTIVE and a processing error for any other terminal state,
// a failed status query, cancellation, or the configured processing timeout.
func (c *Client) PollUntilActive(ctx context.Context, doc *models.Document) error {
	if doc == nil || doc.RemoteName == "" {
		return apperr.New(apperr.KindProcessingFailed, "no uploaded document to wait for", nil)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	for polls := 1; ; polls++ {
		file, err := c.files.Get(ctx, doc.RemoteName, nil)
		if err != nil {
			doc.State = models.DocumentFailed
			return apperr.New(apperr.KindProcessingFailed, fmt.Sprintf("File %s failed to process", doc.FileName), err)
		}
		doc.State = documentState(file.State)
		if file.URI != "" {
			doc.URI = file.URI
		}
		switch doc.State {
		case models.DocumentActive:
			c.log.Info("document active", "remote_name", doc.RemoteName, "polls", polls)
			return nil
		case models.DocumentFailed:
			c.log.Error("document failed to process", "remote_name", doc.RemoteName, "state", file.State)
			return apperr.New(apperr.KindProcessingFailed, fmt.Sprintf("File %s failed to process", doc.FileName), nil)
		}
		if err := c.sleep(ctx, c.pollInterval); err != nil {
			doc.State = models.DocumentFailed
			return apperr.New(apperr.KindProcessingFailed, fmt.Sprintf("File %s did not finish processing", doc.FileName), err)
		}
	}
}

// StartConversation opens a chat whose first user turn carries the document and the seed prompt.
func (c *Client) StartConversation(ctx context.Context, doc *models.Document, seedPrompt string) (*Conversation, error) {
	conv := &Conversation{
		Document: doc,
		Turns:    []models.Turn{{Role: models.RoleUser, Text: seedPrompt, WithDocument: true}},
	}
	if err := c.ResumeConversation(ctx, conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// ResumeConversation rebuilds the remote chat of conv from its stored turns.
func (c *Client) ResumeConversation(ctx context.Context, conv *Conversation) error {
	if conv == nil || !conv.Document.Active() {
		return apperr.New(apperr.KindNotReady, "document is not active", nil)
	}
	history := make([]*genai.Content, 0, len(conv.Turns))
	for _, turn := range conv.Turns {
		history = append(history, contentForTurn(conv.Document, turn))
	}
	chat, err := c.newChat(ctx, c.model, c.genCfg, history)
	if err != nil {
		return apperr.New(apperr.KindChatTurn, "could not open a conversation", err)
	}
	conv.chat = chat
	return nil
}

// SendTurn sends one user turn and returns the model reply. Failures are not retried.
func (c *Client) SendTurn(ctx context.Context, conv *Conversation, text string) (string, error) {
	if conv == nil {
		return "", apperr.New(apperr.KindNotReady, "no conversation in progress", nil)
	}
	if conv.chat == nil {
		if err := c.ResumeConversation(ctx, conv); err != nil {
			return "", err
		}
	}
	resp, err := conv.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", apperr.New(apperr.KindChatTurn, "the document model did not answer", err)
	}
	reply := strings.TrimSpace(resp.Text())
	conv.Turns = append(conv.Turns,
		models.Turn{Role: models.RoleUser, Text: text},
		models.Turn{Role: models.RoleModel, Text: reply},
	)
	return reply, nil
}

func contentForTurn(doc *models.Document, turn models.Turn) *genai.Content {
	role := roleUser
	if turn.Role == models.RoleModel || turn.Role == models.RoleAssistant {
		role = roleModel
	}
	parts := make([]*genai.Part, 0, 2)
	if turn.WithDocument {
		parts = append(parts, &genai.Part{FileData: &genai.FileData{FileURI: doc.URI, MIMEType: doc.MimeType}})
	}
	parts = append(parts, &genai.Part{Text: turn.Text})
	return &genai.Content{Role: role, Parts: parts}
}

func documentState(state genai.FileState) models.DocumentState {
	switch state {
	case genai.FileStateActive:
		return models.DocumentActive
	case genai.FileStateProcessing:
		return models.DocumentPending
	default:
		return models.DocumentFailed
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
