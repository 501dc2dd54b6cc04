package models

import "time"

// DocumentState mirrors the processing state reported by the document service.
type DocumentState string

const (
	DocumentPending DocumentState = "PENDING"
	DocumentActive  DocumentState = "ACTIVE"
	DocumentFailed  DocumentState = "FAILED"
)

const PDFMimeType = "application/pdf"

// Document is an uploaded PDF as known by the remote document service.
type Document struct {
	FileName   string        `json:"file_name"`
	Size       int64         `json:"size"`
	Pages      int           `json:"pages"`
	RemoteName string        `json:"remote_name"`
	URI        string        `json:"uri"`
	MimeType   string        `json:"mime_type"`
	State      DocumentState `json:"state"`
	UploadedAt time.Time     `json:"uploaded_at"`
}

// Active reports whether the document may anchor a conversation.
func (d *Document) Active() bool {
	return d != nil && d.State == DocumentActive
}
