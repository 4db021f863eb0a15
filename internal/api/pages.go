package api

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
)

//go:embed templates/*.html
var templateFS embed.FS

var templateFuncs = template.FuncMap{
	"formatTime": func(t time.Time) string {
		return t.UTC().Format("2006-01-02 15:04:05")
	},
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"statusText": func(code int) string {
		if code == analyzer.StatusConnectFailure {
			return "connection failed"
		}
		return http.StatusText(code)
	},
}

var pages = parsePages("index.html", "urls.html", "url.html", "error.html")

func parsePages(names ...string) map[string]*template.Template {
	out := make(map[string]*template.Template, len(names))
	for _, name := range names {
		out[name] = template.Must(template.New(name).Funcs(templateFuncs).
			ParseFS(templateFS, "templates/layout.html", "templates/"+name))
	}
	return out
}

type pageData struct {
	Title   string
	Flashes []flash
	// Form state for the submission page.
	Input string
	Error string
	// List page.
	URLs []analyzer.URLWithLatestCheck
	// Detail page.
	Detail analyzer.URLDetail
	// Error page.
	Status int
}

// render executes the page into a buffer so a template failure still yields
// a clean 500.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data pageData) {
	if data.Flashes == nil {
		data.Flashes = popFlashes(w, r)
	}
	var buf bytes.Buffer
	if err := pages[name].ExecuteTemplate(&buf, "layout", data); err != nil {
		s.logger.Error("render template failed",
			zap.String("request_id", RequestID(r.Context())),
			zap.String("template", name),
			zap.Error(err),
		)
		http.Error(w, msgInternalError, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("write page failed", zap.Error(err))
	}
}

func (s *Server) renderError(w http.ResponseWriter, r *http.Request, status int) {
	msg := msgInternalError
	if status == http.StatusNotFound {
		msg = msgNotFound
	}
	s.render(w, r, status, "error.html", pageData{Title: msg, Error: msg, Status: status})
}

// timedOut reports whether the request deadline has passed. The handler then
// writes nothing and middleware.Timeout answers 504.
func (s *Server) timedOut(r *http.Request, op string, err error) bool {
	if !errors.Is(r.Context().Err(), context.DeadlineExceeded) {
		return false
	}
	s.logger.Warn(op+" timed out",
		zap.String("request_id", RequestID(r.Context())),
		zap.Error(err),
	)
	return true
}

// fail logs an unexpected error and renders the generic error page.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if s.timedOut(r, op, err) {
		return
	}
	s.logger.Error(op+" failed",
		zap.String("request_id", RequestID(r.Context())),
		zap.Error(err),
	)
	s.renderError(w, r, http.StatusInternalServerError)
}

func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	s.renderError(w, r, http.StatusNotFound)
}

func (s *Server) index(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, "index.html", pageData{Title: "Page Analyzer"})
}

func (s *Server) listURLs(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.List(r.Context())
	if err != nil {
		s.fail(w, r, "list urls", err)
		return
	}
	s.render(w, r, http.StatusOK, "urls.html", pageData{Title: "Sites", URLs: items})
}

// submittedURL reads the form field in either bracket or dotted notation.
func submittedURL(r *http.Request) string {
	if v := r.PostFormValue("url[name]"); v != "" {
		return v
	}
	return r.PostFormValue("url.name")
}

func (s *Server) createURL(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 16*1024)
	if err := r.ParseForm(); err != nil {
		s.render(w, r, http.StatusUnprocessableEntity, "index.html",
			pageData{Title: "Page Analyzer", Error: msgIncorrectURL})
		return
	}
	raw := submittedURL(r)

	record, created, err := s.service.Submit(r.Context(), raw)
	if err != nil {
		if analyzer.IsValidationError(err) {
			s.render(w, r, http.StatusUnprocessableEntity, "index.html",
				pageData{Title: "Page Analyzer", Input: raw, Error: msgIncorrectURL})
			return
		}
		s.fail(w, r, "submit url", err)
		return
	}

	if created {
		setFlash(w, flashSuccess, msgURLAdded)
	} else {
		setFlash(w, flashInfo, msgURLExists)
	}
	http.Redirect(w, r, urlPath(record.ID), http.StatusFound)
}

func (s *Server) showURL(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	detail, err := s.service.Detail(r.Context(), id)
	if err != nil {
		if errors.Is(err, analyzer.ErrURLNotFound) {
			s.notFound(w, r)
			return
		}
		s.fail(w, r, "show url", err)
		return
	}
	s.render(w, r, http.StatusOK, "url.html", pageData{Title: detail.URL.Name, Detail: detail})
}

func (s *Server) runCheck(w http.ResponseWriter, r *http.Request) {
	id, ok := urlID(r)
	if !ok {
		s.notFound(w, r)
		return
	}
	check, err := s.service.Check(r.Context(), id)
	if err != nil {
		if errors.Is(err, analyzer.ErrURLNotFound) {
			s.notFound(w, r)
			return
		}
		s.fail(w, r, "run check", err)
		return
	}

	if check.Connected() {
		setFlash(w, flashSuccess, msgCheckDone)
	} else {
		setFlash(w, flashDanger, msgCheckFailed)
	}
	http.Redirect(w, r, urlPath(id), http.StatusFound)
}

func urlID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func urlPath(id int64) string {
	return "/urls/" + strconv.FormatInt(id, 10)
}
