package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/marples/pdfinsight/internal/analyzer"
	"github.com/marples/pdfinsight/internal/extract"
	"github.com/marples/pdfinsight/internal/storage"
)

const maxUploadSize = 32 << 20 // 32MB
const maxRequestBodySize = 1 << 20

// DocumentAnalyzer abstracts the analysis engine for the API layer.
// *analyzer.Analyzer satisfies this.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, instruction, docText string) analyzer.Result
	AnalyzeIntent(ctx context.Context, intent, docText string) (analyzer.Result, error)
}

type Deps struct {
	Store    *storage.Store
	Analyzer DocumentAnalyzer
	Token    string
}

// NewHandler returns the HTTP API. Everything except /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/documents", handleUploadDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
		r.Delete("/documents/{filename}", handleDeleteDocument(deps))
		r.Get("/content", handleReadContent(deps))

		r.Post("/analyze", handleAnalyze(deps))
		r.Get("/analyses", handleListAnalyses(deps))
		r.Get("/analyses/{id}", handleGetAnalysis(deps))
		r.Delete("/analyses/{id}", handleDeleteAnalysis(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// UploadRequest is the JSON form of a document upload. Content carries the
// raw PDF bytes base64-encoded. Multipart form uploads are accepted as well.
type UploadRequest struct {
	Filename string `json:"filename"`
	Content  string `json:"content"`
	Replace  bool   `json:"replace"`
}

type uploadResponse struct {
	Filename string `json:"filename"`
	Pages    int    `json:"pages"`
	Status   string `json:"status"`
}

func handleUploadDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		filename, data, replace, ok := decodeUpload(w, r)
		if !ok {
			return
		}
		if filename == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "filename is required")
			return
		}

		doc, err := extract.Extract(filename, data)
		if errors.Is(err, extract.ErrUnreadable) {
			httpError(w, http.StatusUnprocessableEntity, "invalid_request_error", "unreadable PDF: %v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "extracting text: %v", err)
			return
		}

		if err := deps.Store.RecordPages(doc.Filename, doc.Pages, replace); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing pages: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(uploadResponse{
			Filename: doc.Filename,
			Pages:    len(doc.Pages),
			Status:   "stored",
		})
	}
}

// decodeUpload pulls the filename, PDF bytes, and replace flag out of either
// a multipart form (field "file") or a JSON body with base64 content. On
// failure it writes the error response and returns ok=false.
func decodeUpload(w http.ResponseWriter, r *http.Request) (filename string, data []byte, replace bool, ok bool) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "parsing multipart form: %v", err)
			return "", nil, false, false
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "form field 'file' is required")
			return "", nil, false, false
		}
		defer file.Close()

		data, err = io.ReadAll(file)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "reading uploaded file: %v", err)
			return "", nil, false, false
		}

		filename = header.Filename
		if v := r.FormValue("filename"); v != "" {
			filename = v
		}
		if v := r.FormValue("replace"); v != "" {
			replace, _ = strconv.ParseBool(v)
		}
		return filename, data, replace, true
	}

	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return "", nil, false, false
	}
	decoded, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid base64 content")
		return "", nil, false, false
	}
	return req.Filename, decoded, req.Replace, true
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		docs, err := deps.Store.ListDocuments(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}
		if docs == nil {
			docs = []storage.DocumentInfo{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(docs)
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")

		err := deps.Store.DeleteDocument(filename)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleReadContent(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var content string
		var err error
		if filename := r.URL.Query().Get("filename"); filename != "" {
			content, err = deps.Store.ReadDocumentContent(filename)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "document not found")
				return
			}
		} else {
			content, err = deps.Store.ReadAllContent()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading content: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"content": content})
	}
}

// AnalyzeRequest asks a question about the stored content. Exactly one of
// Instruction (free-form) or Intent (a fixed named analysis) must be set.
// With Filename empty the analysis runs over all stored documents.
type AnalyzeRequest struct {
	Filename    string `json:"filename"`
	Instruction string `json:"instruction"`
	Intent      string `json:"intent"`
}

func handleAnalyze(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req AnalyzeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Instruction == "" && req.Intent == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of instruction or intent is required")
			return
		}
		if req.Instruction != "" && req.Intent != "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "instruction and intent are mutually exclusive")
			return
		}

		var content string
		var err error
		if req.Filename != "" {
			content, err = deps.Store.ReadDocumentContent(req.Filename)
			if errors.Is(err, storage.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found", "document not found")
				return
			}
		} else {
			content, err = deps.Store.ReadAllContent()
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading content: %v", err)
			return
		}
		if content == "" {
			httpError(w, http.StatusConflict, "invalid_request_error", "no document content stored; upload a PDF first")
			return
		}

		var res analyzer.Result
		if req.Intent != "" {
			res, err = deps.Analyzer.AnalyzeIntent(r.Context(), req.Intent, content)
			if err != nil {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
				return
			}
		} else {
			res = deps.Analyzer.Analyze(r.Context(), req.Instruction, content)
		}

		status := storage.StatusCompleted
		if res.Failed {
			status = storage.StatusFailed
		}
		record := storage.Analysis{
			ID:          uuid.New().String(),
			CreatedAt:   time.Now().UTC(),
			Filename:    req.Filename,
			Intent:      req.Intent,
			Instruction: req.Instruction,
			Prompt:      res.Prompt,
			Result:      res.Text,
			Status:      status,
			Attempts:    res.Attempts,
		}
		if err := deps.Store.SaveAnalysis(record); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "saving analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(record)
	}
}

func handleListAnalyses(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		analyses, err := deps.Store.ListAnalyses(limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing analyses: %v", err)
			return
		}
		if analyses == nil {
			analyses = []storage.Analysis{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(analyses)
	}
}

func handleGetAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		a, err := deps.Store.GetAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "getting analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a)
	}
}

func handleDeleteAnalysis(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting analysis: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
