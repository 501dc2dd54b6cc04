package api

import (
	"html/template"
	"time"

	"docuexplore/internal/models"
)

var templateFuncs = template.FuncMap{
	"progress":   progressText,
	"refreshing": refreshing,
	"clock": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Local().Format("15:04")
	},
}

func refreshing(v models.SessionView) bool {
	return v.Pending || v.Phase.Busy()
}

func progressText(v models.SessionView) string {
	switch v.Phase {
	case models.PhaseUploading:
		return "Uploading PDF..."
	case models.PhaseWaitingActive:
		return "Waiting for the document to be processed..."
	case models.PhaseSummarizing:
		return "Summarizing the document..."
	case models.PhaseEnriching:
		return "Generating a title and finding related articles..."
	}
	if v.Pending {
		return "Working..."
	}
	return ""
}
