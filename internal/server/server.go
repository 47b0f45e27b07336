package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/yourorg/ramldoc/internal/config"
	"github.com/yourorg/ramldoc/internal/fragment"
	"github.com/yourorg/ramldoc/internal/generator"
	"github.com/yourorg/ramldoc/internal/pathtmpl"
	"github.com/yourorg/ramldoc/internal/payload"
	"github.com/yourorg/ramldoc/internal/store"
	"github.com/yourorg/ramldoc/pkg/types"
)

// Server exposes documentation runs over HTTP.
type Server struct {
	cfg    *config.Config
	store  store.Store
	doc    *generator.Documenter
	logger *slog.Logger
	mux    *http.ServeMux
}

// New constructs a new Server with routes registered.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if st == nil {
		return nil, errors.New("store is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		cfg:    cfg,
		store:  st,
		doc:    generator.New(cfg, st, logger),
		logger: logger,
		mux:    http.NewServeMux(),
	}
	srv.registerRoutes()
	return srv, nil
}

// Handler returns the http handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// ListenAndServe starts the server on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.mux)
}

func (s *Server) registerRoutes() {
	// Written snippets, one directory per operation.
	s.mux.Handle("/snippets/", http.StripPrefix("/snippets/", http.FileServer(http.Dir(s.cfg.Output.Dir))))

	s.mux.HandleFunc("/api/runs", s.handleRuns)
	s.mux.HandleFunc("/api/runs/", s.handleRunRoutes)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		runs, err := s.store.ListRuns()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if runs == nil {
			runs = []types.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	case http.MethodPost:
		var req struct {
			Title string `json:"title"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
				return
			}
		}
		run, err := s.store.CreateRun("http", req.Title, s.cfg.Output.Dir)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, run)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleRunRoutes(w http.ResponseWriter, r *http.Request) {
	id, tail, ok := splitPath(r.URL.Path, "/api/runs/")
	if !ok || id == "" {
		http.NotFound(w, r)
		return
	}
	run, err := s.store.GetRun(id)
	if errors.Is(err, sql.ErrNoRows) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	switch tail {
	case "":
		s.handleRunDetail(w, r, run)
	case "operations":
		s.handleOperations(w, r, run)
	case "resources":
		s.handleResources(w, r, run)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request, run *types.Run) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, run)
	case http.MethodDelete:
		if err := s.store.DeleteRun(run.ID); err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type operationRequest struct {
	Operation struct {
		Name            string            `json:"name"`
		Method          string            `json:"method"`
		Path            string            `json:"path"`
		RequestHeaders  map[string]string `json:"request_headers"`
		RequestBody     json.RawMessage   `json:"request_body"`
		StatusCode      int               `json:"status_code"`
		ResponseHeaders map[string]string `json:"response_headers"`
		ResponseBody    json.RawMessage   `json:"response_body"`
	} `json:"operation"`
	Parameters types.Parameters `json:"parameters"`
}

type operationResponse struct {
	Operation string   `json:"operation"`
	Path      string   `json:"path"`
	Method    string   `json:"method"`
	Files     []string `json:"files"`
}

func (s *Server) handleOperations(w http.ResponseWriter, r *http.Request, run *types.Run) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	in := req.Operation
	op := &types.Operation{
		Name:            strings.TrimSpace(in.Name),
		Method:          in.Method,
		PathTemplate:    in.Path,
		RequestHeaders:  in.RequestHeaders,
		RequestBody:     bodyBytes(in.RequestBody),
		StatusCode:      in.StatusCode,
		ResponseHeaders: in.ResponseHeaders,
		ResponseBody:    bodyBytes(in.ResponseBody),
	}
	if op.Name == "" {
		op.Name = uuid.NewString()
	}
	params := req.Parameters
	params.RelaxedRequest = params.RelaxedRequest || s.cfg.Validation.RelaxedRequest
	params.RelaxedResponse = params.RelaxedResponse || s.cfg.Validation.RelaxedResponse

	out, err := s.doc.Document(r.Context(), run.ID, op, params)
	if err != nil {
		status := http.StatusInternalServerError
		if isValidation(err) {
			status = http.StatusUnprocessableEntity
		}
		s.logger.Warn("document operation failed", "run", run.ID, "operation", op.Name, "error", err)
		writeJSON(w, status, map[string]string{"operation": op.Name, "error": err.Error()})
		return
	}
	resp := operationResponse{Operation: out.Operation, Path: out.Path, Method: out.Method.Method}
	for _, f := range out.Files {
		resp.Files = append(resp.Files, "/snippets/"+out.Operation+"/"+f.Name)
	}
	writeJSON(w, http.StatusCreated, resp)
}

type resourceView struct {
	Path    string   `json:"path"`
	Methods []string `json:"methods"`
	RAML    string   `json:"raml"`
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request, run *types.Run) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resources, err := s.store.ListResources(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	views := make([]resourceView, 0, len(resources))
	for _, res := range resources {
		raml, err := fragment.Render(res, "")
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		views = append(views, resourceView{Path: res.Path, Methods: fragment.SortedMethods(res), RAML: string(raml)})
	}
	writeJSON(w, http.StatusOK, views)
}

// bodyBytes accepts a JSON document as is; a JSON string carries a non-JSON
// payload verbatim.
func bodyBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return []byte(text)
	}
	return []byte(raw)
}

func isValidation(err error) bool {
	var (
		missing    *payload.MissingFieldError
		undoc      *payload.UndocumentedFieldError
		mismatch   *payload.TypeMismatchError
		duplicate  *payload.DuplicateDescriptorError
		invalid    *payload.InvalidBodyError
		syntax     *payload.PathSyntaxError
		unmatched  *pathtmpl.UnmatchedPathParameterError
		unknownTyp *types.UnknownTypeError
	)
	return errors.As(err, &missing) || errors.As(err, &undoc) || errors.As(err, &mismatch) ||
		errors.As(err, &duplicate) || errors.As(err, &invalid) || errors.As(err, &syntax) ||
		errors.As(err, &unmatched) || errors.As(err, &unknownTyp)
}

func splitPath(fullPath, prefix string) (string, string, bool) {
	if !strings.HasPrefix(fullPath, prefix) {
		return "", "", false
	}
	rest := strings.TrimPrefix(fullPath, prefix)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	tail := ""
	if len(parts) > 1 {
		tail = strings.Join(parts[1:], "/")
	}
	return id, tail, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
