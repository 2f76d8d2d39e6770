package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/wrap-tracker/internal/parsing"
	"github.com/zombor/wrap-tracker/internal/photo"
)

// maxPhotoSize bounds a photo upload
const maxPhotoSize = int64(20 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+senderIDHeader+", "+senderNameHeader)
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// jsonError writes an {"error": message} response with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeServiceError maps service errors to status codes
func writeServiceError(w http.ResponseWriter, action string, err error) {
	var catalogErr *parsing.CatalogLoadError
	switch {
	case errors.Is(err, ErrInvalidPeriod):
		jsonError(w, "❌ Неверный формат даты. Введите в формате ГГГГ-ММ-ДД или ГГГГ-ММ.", http.StatusBadRequest)
	case errors.Is(err, ErrMissingSender):
		jsonError(w, "Sender ID required", http.StatusBadRequest)
	case errors.Is(err, ErrInvalidPassword):
		jsonError(w, "❌ Неверный пароль.", http.StatusUnauthorized)
	case errors.Is(err, ErrNotFound):
		jsonError(w, "Not found", http.StatusNotFound)
	case errors.Is(err, photo.ErrUnsupportedFormat):
		jsonError(w, err.Error(), http.StatusUnsupportedMediaType)
	case errors.As(err, &catalogErr):
		slog.Error("Catalog unavailable", "action", action, "path", catalogErr.Path, "error", catalogErr.Err)
		jsonError(w, fmt.Sprintf("⚠️ Ошибка при обработке отчета: каталог услуг недоступен (%s)", catalogErr.Path), http.StatusServiceUnavailable)
	default:
		slog.Error("Request failed", "action", action, "error", err)
		jsonError(w, "Internal server error", http.StatusInternalServerError)
	}
}

// periodParam reads ?period=YYYY-MM-DD|YYYY-MM
func periodParam(r *http.Request) (Period, error) {
	return ParsePeriod(r.URL.Query().Get("period"))
}

// handleRegister records the sender
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.RegisterUser(r.Header.Get(senderIDHeader), r.Header.Get(senderNameHeader))
	if err != nil {
		writeServiceError(w, "register", err)
		return
	}

	greeting := "Привет! Отправь отчет в свободной форме. Фото тоже можешь прислать отдельным сообщением."
	if user.IsAdmin {
		greeting = "Привет, админ! Отправь отчет или выбери действие:"
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": user, "message": greeting})
}

// handleLogin switches the sender to admin mode
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.Login(r.Header.Get(senderIDHeader), req.Password); err != nil {
		writeServiceError(w, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"admin": true, "message": "✅ Администратор подтвержден."})
}

// handleSubmitMessage accepts a free-form text report
func (s *Server) handleSubmitMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.HasPrefix(req.Text, "/") {
		jsonError(w, "Commands are not reports", http.StatusBadRequest)
		return
	}

	sub, err := s.service.SubmitReport(r.Header.Get(senderIDHeader), r.Header.Get(senderNameHeader), req.Text)
	if err != nil {
		writeServiceError(w, "submit report", err)
		return
	}

	code := http.StatusCreated
	if len(sub.Reports) == 0 {
		code = http.StatusOK
	}
	writeJSON(w, code, sub)
}

// handleUploadPhoto accepts a photo with an optional caption
func (s *Server) handleUploadPhoto(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPhotoSize+1<<20)
	if err := r.ParseMultipartForm(maxPhotoSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 20MB."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("photo")
	if err != nil {
		jsonError(w, "No photo provided", http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".heic":
			contentType = "image/heic"
		case ".heif":
			contentType = "image/heif"
		case ".pdf":
			contentType = "application/pdf"
		}
	}

	sub, err := s.service.SubmitPhoto(
		r.Header.Get(senderIDHeader),
		r.Header.Get(senderNameHeader),
		header.Filename,
		data,
		contentType,
		r.FormValue("caption"),
	)
	if err != nil {
		writeServiceError(w, "submit photo", err)
		return
	}

	code := http.StatusCreated
	if sub.Buffered {
		code = http.StatusAccepted
	}
	writeJSON(w, code, sub)
}

// handleReportSummary returns the period summary as JSON
func (s *Server) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, "summary", err)
		return
	}
	summary, err := s.service.Summary(period)
	if err != nil {
		writeServiceError(w, "summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleReportText returns the period summary as a chat message
func (s *Server) handleReportText(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, "summary text", err)
		return
	}
	summary, err := s.service.Summary(period)
	if err != nil {
		writeServiceError(w, "summary text", err)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, RenderSummary(summary))
}

// handleReportXLSX returns the period details as a spreadsheet
func (s *Server) handleReportXLSX(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, "export", err)
		return
	}
	data, filename, err := s.service.ExportXLSX(period)
	if errors.Is(err, ErrNothingToExport) {
		jsonError(w, "Нет данных по машинам за выбранный период.", http.StatusNotFound)
		return
	}
	if err != nil {
		writeServiceError(w, "export", err)
		return
	}
	writeAttachment(w, filename, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}

// handleListPhotos returns photo records for a period
func (s *Server) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, "list photos", err)
		return
	}
	photos, err := s.service.ListPhotos(period)
	if err != nil {
		writeServiceError(w, "list photos", err)
		return
	}
	writeJSON(w, http.StatusOK, photos)
}

// handlePhotoArchive returns a period's photos as a ZIP archive
func (s *Server) handlePhotoArchive(w http.ResponseWriter, r *http.Request) {
	period, err := periodParam(r)
	if err != nil {
		writeServiceError(w, "photo archive", err)
		return
	}
	data, filename, err := s.service.PhotoArchive(period)
	if errors.Is(err, ErrNothingToExport) {
		msg := "Нет фото за этот месяц."
		if period.From == period.To {
			msg = "Нет фото за эту дату."
		}
		jsonError(w, msg, http.StatusNotFound)
		return
	}
	if err != nil {
		writeServiceError(w, "photo archive", err)
		return
	}
	writeAttachment(w, filename, "application/zip", data)
}

// handleGetPhotoFile returns a single photo file
func (s *Server) handleGetPhotoFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.service.GetPhotoFile(id)
	if err != nil {
		jsonError(w, "File not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleUnrecognized lists the phrases no catalog entry matched
func (s *Server) handleUnrecognized(w http.ResponseWriter, r *http.Request) {
	records, err := s.service.UnrecognizedPhrases()
	if err != nil {
		writeServiceError(w, "unrecognized", err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleReloadCatalog drops the cached catalog
func (s *Server) handleReloadCatalog(w http.ResponseWriter, r *http.Request) {
	s.service.ReloadCatalog()
	setCORSHeaders(w)
	w.WriteHeader(http.StatusNoContent)
}

func writeAttachment(w http.ResponseWriter, filename, contentType string, data []byte) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Write(data)
}
