package docai

import (
	"bytes"
	"net/http"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"docuexplore/internal/apperr"
	"docuexplore/internal/models"
)

func init() {
	api.DisableConfigDir()
}

// Inspect checks that data looks like a readable PDF and returns its page count.
func Inspect(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, apperr.New(apperr.KindValidation, "the uploaded file is empty", nil)
	}
	if http.DetectContentType(data) != models.PDFMimeType {
		return 0, apperr.New(apperr.KindValidation, "only PDF files are accepted", nil)
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, apperr.New(apperr.KindValidation, "the PDF could not be read", err)
	}
	if pages == 0 {
		return 0, apperr.New(apperr.KindValidation, "the PDF has no pages", nil)
	}
	return pages, nil
}
