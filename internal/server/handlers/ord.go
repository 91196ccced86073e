// Package handlers provides the HTTP handlers: the ORD read surface, the
// GitHub webhook, the status API and the dashboard.
package handlers

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strings"

	"git.home.luguber.info/inful/ordserve/internal/config"
	"git.home.luguber.info/inful/ordserve/internal/document"
	"git.home.luguber.info/inful/ordserve/internal/ord"
	"git.home.luguber.info/inful/ordserve/internal/server/responses"
)

// DocumentService is the content-read surface the ORD handlers need.
type DocumentService interface {
	GetProcessedDocument(ctx context.Context, relPath string) (ord.Document, error)
	GetOrdConfiguration(ctx context.Context, perspective string) (*ord.ConfigurationPayload, error)
	GetFqnMap(ctx context.Context) (ord.FqnMap, error)
	GetFileContent(relPath string) ([]byte, error)
}

// ORDHandlers serves the well-known configuration, processed documents and
// referenced definition files.
type ORDHandlers struct {
	Service DocumentService
}

// HandleConfiguration serves GET /.well-known/open-resource-discovery.
func (h *ORDHandlers) HandleConfiguration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		responses.WriteError(w, http.StatusMethodNotAllowed,
			responses.CodeValidation, "method not allowed", r.Method)
		return
	}
	perspective := r.URL.Query().Get("perspective")
	if perspective != "" && !ord.ValidPerspective(perspective) {
		responses.WriteError(w, http.StatusBadRequest,
			responses.CodeValidation, "invalid perspective: "+perspective, "perspective")
		return
	}

	cfg, err := h.Service.GetOrdConfiguration(r.Context(), perspective)
	if err != nil {
		writeServiceError(w, err, r.URL.Path)
		return
	}
	responses.WriteJSON(w, http.StatusOK, cfg)
}

// HandleDocument serves GET /ord/v1/documents/<path>. The .json extension is
// implicit in the request path.
func (h *ORDHandlers) HandleDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		responses.WriteError(w, http.StatusMethodNotAllowed,
			responses.CodeValidation, "method not allowed", r.Method)
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, config.DocumentsPath)
	if rel == "" {
		responses.WriteError(w, http.StatusNotFound,
			responses.CodeNotFound, "no document requested", r.URL.Path)
		return
	}

	doc, err := h.Service.GetProcessedDocument(r.Context(), rel)
	if err != nil {
		writeServiceError(w, err, r.URL.Path)
		return
	}
	responses.WriteJSON(w, http.StatusOK, doc)
}

// HandleFile serves GET /ord/v1/<path>: raw content of referenced resource
// definition files.
func (h *ORDHandlers) HandleFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		responses.WriteError(w, http.StatusMethodNotAllowed,
			responses.CodeValidation, "method not allowed", r.Method)
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, config.ORDPathPrefix)
	if rel == "" {
		responses.WriteError(w, http.StatusNotFound,
			responses.CodeNotFound, "no file requested", r.URL.Path)
		return
	}

	data, err := h.Service.GetFileContent(rel)
	if err != nil {
		writeServiceError(w, err, r.URL.Path)
		return
	}
	w.Header().Set("Content-Type", contentTypeFor(rel))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func contentTypeFor(rel string) string {
	switch path.Ext(rel) {
	case ".json":
		return "application/json; charset=utf-8"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".xml", ".edmx":
		return "application/xml"
	default:
		return "application/octet-stream"
	}
}

// writeServiceError maps document-service failures onto the error envelope.
func writeServiceError(w http.ResponseWriter, err error, target string) {
	var notFound *document.NotFoundError
	if errors.As(err, &notFound) {
		responses.WriteError(w, http.StatusNotFound, responses.CodeNotFound, notFound.Error(), target)
		return
	}
	responses.WriteError(w, http.StatusInternalServerError, responses.CodeInternal, err.Error(), target)
}
