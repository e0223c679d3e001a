package server

import (
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dans-labs/transformer/internal/convert"
	svcerrors "github.com/dans-labs/transformer/internal/errors"
	"github.com/dans-labs/transformer/internal/pipeline"
	"github.com/dans-labs/transformer/internal/store"
	"github.com/dans-labs/transformer/internal/version"
)

const serviceName = "transformer"

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    serviceName,
		"version": version.Current(),
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "pong"
	}
	writeJSON(w, http.StatusOK, map[string]string{"ping": name})
}

// handleUpload registers an inline stylesheet body and optionally persists
// it to the store.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if !isXMLContentType(r.Header.Get("Content-Type")) {
		writeError(w, svcerrors.NewUnsupportedMedia(r.Header.Get("Content-Type")).
			WithStatus(http.StatusBadRequest))
		return
	}
	source, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, svcerrors.NewInvalidInput("reading request body", err))
		return
	}
	s.registerStylesheet(w, r, source)
}

// handleUploadURL fetches a stylesheet from the url query parameter instead
// of the request body. Upstream failures keep their status code.
func (s *Server) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		writeError(w, svcerrors.NewInvalidInput("url query parameter is required", nil))
		return
	}
	res, err := s.fetcher.Get(r.Context(), url)
	if err != nil {
		writeError(w, err)
		return
	}
	s.registerStylesheet(w, r, res.Body)
}

func (s *Server) registerStylesheet(w http.ResponseWriter, r *http.Request, source []byte) {
	name := store.NormalizeName(chi.URLParam(r, "name"))
	save, err := strconv.ParseBool(chi.URLParam(r, "save"))
	if err != nil {
		writeError(w, svcerrors.NewInvalidInput("save must be true or false", err))
		return
	}

	if err := s.registry.Upsert(name, source); err != nil {
		writeError(w, err)
		return
	}
	if save {
		if err := s.store.Write(name, source); err != nil {
			writeError(w, err)
			return
		}
	}
	s.metrics.SetRegistrySize(s.registry.Len())
	s.logger.Info(r.Context(), "stylesheet registered", "stylesheet", name, "saved", save)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"status": "stylesheet " + name + " registered",
		"saved":  save,
	})
}

// handleTransform serves both the body and the source_url variants. The
// output shape comes from the path segment or the output_format query
// parameter, defaulting to the raw transform result.
func (s *Server) handleTransform(w http.ResponseWriter, r *http.Request) {
	name := store.NormalizeName(chi.URLParam(r, "name"))

	formatParam := chi.URLParam(r, "output")
	if formatParam == "" {
		formatParam = r.URL.Query().Get("output_format")
	}
	format, err := pipeline.ParseOutputFormat(formatParam)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := s.requestPayload(r)
	if err != nil {
		writeError(w, err)
		return
	}

	start := time.Now()
	result, err := s.pipeline.Transform(r.Context(), name, payload, format)
	s.metrics.ObserveTransform(name, start, err)
	if err != nil {
		s.logger.Warn(r.Context(), err, "transform failed", "stylesheet", name)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"result": result})
}

// requestPayload decides the payload variant once, at the boundary.
func (s *Server) requestPayload(r *http.Request) (pipeline.Payload, error) {
	if url := r.URL.Query().Get("source_url"); url != "" {
		return pipeline.RemotePayload{URL: url}, nil
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, svcerrors.NewInvalidInput("reading request body", err)
	}
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.Contains(contentType, "json"):
		return pipeline.JSONPayload{Data: body}, nil
	case isXMLContentType(contentType):
		return pipeline.XMLPayload{Data: body}, nil
	default:
		return nil, svcerrors.NewUnsupportedMedia(contentType).WithStatus(http.StatusBadRequest)
	}
}

func (s *Server) handleJSONLDToRDF(w http.ResponseWriter, r *http.Request) {
	if !strings.Contains(r.Header.Get("Content-Type"), "json") {
		writeError(w, svcerrors.NewUnsupportedMedia(r.Header.Get("Content-Type")).
			WithStatus(http.StatusBadRequest))
		return
	}
	format, err := convert.ParseRDFFormat(chi.URLParam(r, "format"))
	if err != nil {
		writeError(w, err)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, svcerrors.NewInvalidInput("reading request body", err))
		return
	}
	out, err := convert.JSONLDToRDF(body, format)
	if err != nil {
		writeError(w, err)
		return
	}
	writeText(w, http.StatusOK, format.ContentType(), out)
}

func (s *Server) handleXMLToJSON(w http.ResponseWriter, r *http.Request) {
	clean, err := strconv.ParseBool(chi.URLParam(r, "clean"))
	if err != nil {
		writeError(w, svcerrors.NewInvalidInput("clean must be true or false", err))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, svcerrors.NewInvalidInput("reading request body", err))
		return
	}
	out, err := convert.XMLToJSON(body, clean)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// handleList returns the stored source of one stylesheet, or of all of them.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("xslt_name"); name != "" {
		text, err := s.store.Read(store.NormalizeName(name))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{store.NormalizeName(name): text})
		return
	}
	all, err := s.store.ReadAll()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	names, err := s.registry.ReloadAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	s.metrics.SetRegistrySize(len(names))
	writeJSON(w, http.StatusOK, map[string]interface{}{"stylesheets": names})
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Redacted())
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	writeError(w, s.store.Delete(chi.URLParam(r, "name")))
}

func isXMLContentType(contentType string) bool {
	return strings.Contains(contentType, "xml")
}
