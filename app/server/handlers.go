package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/b1506704/Live2D-AI-Agent/app/agent"
	"github.com/b1506704/Live2D-AI-Agent/app/models"
)

const maxBodyBytes = 1 << 20

type taskResponse struct {
	Task      string       `json:"task"`
	Result    agent.Result `json:"result"`
	Timestamp string       `json:"timestamp"`
}

type language struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type chatResponse struct {
	agent.ChatReply
	Timestamp string `json:"timestamp"`
}

// decodeTask accepts an empty task; the executor runs it like any other.
func decodeTask(data []byte) (agent.TaskRequest, error) {
	var req agent.TaskRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errors.New("invalid task payload: " + err.Error())
	}
	return req, nil
}

func decodeChat(data []byte) (agent.ChatRequest, error) {
	var req agent.ChatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, errors.New("invalid chat payload: " + err.Error())
	}
	if strings.TrimSpace(req.Message) == "" {
		return req, errors.New("message is required")
	}
	return req, nil
}

func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	var raw json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&raw); err != nil {
		return nil, errors.New("invalid JSON body")
	}
	return raw, nil
}

func (s *Server) handleExecuteTask(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeTask(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result := s.executor.ExecuteTask(r.Context(), req)
	writeJSON(w, http.StatusOK, taskResponse{
		Task:      req.Task,
		Result:    result,
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req, err := decodeChat(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	reply, err := s.executor.Chat(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chatResponse{ChatReply: reply, Timestamp: time.Now().Format(time.RFC3339)})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("source") != "archive" {
		writeJSON(w, http.StatusOK, map[string]any{"history": s.executor.History()})
		return
	}
	if s.opts.Archive == nil {
		writeError(w, http.StatusNotFound, "archive is not enabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.opts.Archive.ListExecutions(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("❌ Error reading archive")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []agent.ExecutionRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, _ *http.Request) {
	s.executor.ClearHistory()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.executor.Tools().Catalog()})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.opts.Logs == nil {
		writeJSON(w, http.StatusOK, map[string]any{"logs": []string{}})
		return
	}
	n, err := strconv.Atoi(r.URL.Query().Get("n"))
	if err != nil || n <= 0 {
		n = 100
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": s.opts.Logs.GetLastLogs(n)})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	langs := make([]language, 0, len(s.opts.Languages))
	for _, code := range s.opts.Languages {
		langs = append(langs, language{Code: code, Name: models.LanguageName(code)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": langs,
		"default":   s.opts.DefaultLanguage,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
		"tools":     len(s.executor.Tools().Catalog()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("⚠️ Error writing response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
