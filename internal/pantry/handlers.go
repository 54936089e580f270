package pantry

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
)

// maxUploadSize bounds multipart uploads; high resolution phone photos are large
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a JSON error body with CORS headers set
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	writeJSON(w, code, map[string]string{"error": message})
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func (s *Server) handleHealthcheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// contentTypeFor determines the upload's content type from its part header or extension
func contentTypeFor(header string, filename string) string {
	contentType := strings.ToLower(strings.TrimSpace(header))
	if contentType != "" {
		return contentType
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return "application/octet-stream"
	}
}

// handleRecognize runs an uploaded image through the pipeline
func (s *Server) handleRecognize(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			jsonError(w, "File is too large. Maximum size is 50MB. Please compress or resize your image.", http.StatusRequestEntityTooLarge)
			return
		}
		jsonError(w, "Error parsing form", http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		msg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			msg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, msg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	capture := Capture{
		Filename:    header.Filename,
		Data:        data,
		ContentType: contentTypeFor(header.Header.Get("Content-Type"), header.Filename),
		Err:         err,
	}
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
	}

	result := s.service.Recognize(r.Context(), capture)

	code := http.StatusOK
	switch {
	case result.Saved:
		code = http.StatusCreated
	case result.Err != nil && result.Err.Kind == KindEncoding:
		code = http.StatusUnprocessableEntity
	case result.Err != nil:
		code = http.StatusBadGateway
	}
	setCORSHeaders(w)
	writeJSON(w, code, result)
}

// handleListRecords returns recent records, optionally filtered by q
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	limit := 0
	if v := query.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			corsError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	var records []*Record
	if q := strings.TrimSpace(query.Get("q")); q != "" {
		records = s.service.Search(r.Context(), q)
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
	} else {
		records = s.service.List(r.Context(), limit)
	}

	writeJSON(w, http.StatusOK, records)
}

// handleGetRecord returns a single record
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	record, err := s.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "Record not found", http.StatusNotFound)
			return
		}
		slog.Error("Error getting record", "id", id, "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// handleGetImage returns the captured image for a record
func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.service.Image(r.Context(), id)
	if err != nil {
		corsError(w, "Image not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteRecord deletes a record. Unknown IDs are reported, not ignored.
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.Delete(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			jsonError(w, "Record not found", http.StatusNotFound)
			return
		}
		slog.Error("Error deleting record", "id", id, "error", err)
		jsonError(w, "Error deleting record", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleClearRecords deletes every record
func (s *Server) handleClearRecords(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Clear(r.Context()); err != nil {
		slog.Error("Error clearing records", "error", err)
		jsonError(w, "Error clearing records", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleExport streams the full history as JSON or Parquet
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatJSON
	}

	var contentType string
	switch format {
	case FormatJSON:
		contentType = "application/json"
	case FormatParquet:
		contentType = "application/vnd.apache.parquet"
	default:
		corsError(w, fmt.Sprintf("unsupported export format %q", format), http.StatusBadRequest)
		return
	}

	records := s.service.List(r.Context(), -1)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="history.%s"`, format))
	if err := Export(w, format, records); err != nil {
		slog.Error("Error exporting records", "format", format, "error", err)
	}
}
