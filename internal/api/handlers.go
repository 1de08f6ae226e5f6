package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"onbid_bot/internal/checker"
	"onbid_bot/internal/model"
)

const screenshotPath = "/api/screenshot"

type checkResponse struct {
	Title          string       `json:"title"`
	Keyword        string       `json:"keyword"`
	Results        []model.Item `json:"results"`
	NewItemsCount  int          `json:"newItemsCount"`
	NewItems       []model.Item `json:"newItems"`
	Notified       bool         `json:"notified"`
	Stage          model.Stage  `json:"stage"`
	Screenshot     *string      `json:"screenshot"`
	ScreenshotFile string       `json:"screenshotFile,omitempty"`
	Error          string       `json:"error,omitempty"`
	ErrorKind      string       `json:"errorKind,omitempty"`
	NotifyError    string       `json:"notifyError,omitempty"`
}

type stateResponse struct {
	Keyword     string       `json:"keyword"`
	LastChecked time.Time    `json:"lastChecked"`
	Items       []model.Item `json:"items"`
}

func newCheckResponse(res *model.RunResult, err error) checkResponse {
	out := checkResponse{
		Title:          fmt.Sprintf("온비드 '%s' 검색 결과", res.Keyword),
		Keyword:        res.Keyword,
		Results:        res.TotalItemsSeen,
		NewItemsCount:  len(res.NewItems),
		NewItems:       res.NewItems,
		Notified:       res.Notified,
		Stage:          res.Stage,
		ScreenshotFile: res.ScreenshotFile,
		NotifyError:    res.NotifyError,
	}
	if len(res.Screenshot) > 0 {
		p := screenshotPath
		out.Screenshot = &p
	}
	if err != nil {
		out.Error = err.Error()
		out.ErrorKind = checker.Kind(err)
		out.Stage = res.FailedAt
	}
	return out
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		keyword = s.defaultKeyword(r.Context())
	}

	res, err := s.runner.Run(r.Context(), keyword)
	if err != nil {
		s.log.Error("check failed", "keyword", keyword, "error", err)
		s.respondWithJSON(w, http.StatusInternalServerError, newCheckResponse(res, err))
		return
	}
	s.respondWithJSON(w, http.StatusOK, newCheckResponse(res, nil))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.GetSettings(r.Context())
	if err != nil {
		s.log.Error("failed to load settings", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	st, err := s.updateSettings(r.Context(), func(st *model.Settings) error {
		return mergeSettings(st, body)
	})
	if err != nil {
		var bad *badRequestError
		if errors.As(err, &bad) {
			s.respondWithError(w, http.StatusBadRequest, bad.msg)
			return
		}
		s.log.Error("failed to save settings", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) handleStartPolling(w http.ResponseWriter, r *http.Request) {
	st, err := s.startPolling(r.Context())
	if err != nil {
		s.log.Error("failed to start polling", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) handleStopPolling(w http.ResponseWriter, r *http.Request) {
	st, err := s.stopPolling(r.Context())
	if err != nil {
		s.log.Error("failed to stop polling", "error", err)
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondWithJSON(w, http.StatusOK, st)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))
	if keyword == "" {
		keyword = s.defaultKeyword(r.Context())
	}

	state, err := s.store.Load(r.Context(), keyword)
	if err != nil {
		s.log.Error("failed to load state", "keyword", keyword, "error", err)
		s.respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if state == nil {
		s.respondWithError(w, http.StatusNotFound, "No state for keyword")
		return
	}
	s.respondWithJSON(w, http.StatusOK, stateResponse{
		Keyword:     state.Keyword,
		LastChecked: state.LastChecked,
		Items:       state.Items,
	})
}

func (s *Server) handleScreenshot(w http.ResponseWriter, _ *http.Request) {
	last := s.runner.Last()
	if last == nil || len(last.Screenshot) == 0 {
		s.respondWithError(w, http.StatusNotFound, "No screenshot")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(last.Screenshot)
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"storage": "healthy"}
	if _, err := s.store.GetSettings(ctx); err != nil {
		s.log.Error("health check failed for storage", "error", err)
		status["storage"] = "unhealthy"
		s.respondWithJSON(w, http.StatusServiceUnavailable, status)
		return
	}
	s.respondWithJSON(w, http.StatusOK, status)
}

// defaultKeyword prefers the saved settings keyword over the configured one.
func (s *Server) defaultKeyword(ctx context.Context) string {
	st, err := s.store.GetSettings(ctx)
	if err == nil && strings.TrimSpace(st.Keyword) != "" {
		return strings.TrimSpace(st.Keyword)
	}
	return s.opts.Keyword
}

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		s.log.Error("encode response", "error", err)
		code = http.StatusInternalServerError
		response = []byte(`{"error":"encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
