package server

import (
	"encoding/json"
	"net/http"

	"github.com/arborio/agentcore/pkg/errkind"
	"github.com/arborio/agentcore/pkg/types"
)

// getConfig returns the active environment's configuration with api keys
// blanked.
func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	if s.appConfig == nil {
		writeJSON(w, http.StatusOK, &types.Config{})
		return
	}

	redacted := *s.appConfig
	redacted.Provider = make(map[string]types.ProviderConfig, len(s.appConfig.Provider))
	for id, pc := range s.appConfig.Provider {
		pc.APIKey = ""
		redacted.Provider[id] = pc
	}
	writeJSON(w, http.StatusOK, &redacted)
}

// listProviders returns the registered providers and their models.
func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	type providerView struct {
		ID     string        `json:"id"`
		Name   string        `json:"name"`
		Models []types.Model `json:"models"`
	}

	providers := s.providerReg.List()
	out := make([]providerView, 0, len(providers))
	for _, p := range providers {
		out = append(out, providerView{ID: p.ID(), Name: p.Name(), Models: p.Models()})
	}
	writeJSON(w, http.StatusOK, out)
}

// listModels returns every model across providers, best first.
func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.providerReg.AllModels())
}

// selectModel switches the default model through the orchestrator, which
// validates it and records it on the recency list.
func (s *Server) selectModel(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProviderID string `json:"providerID"`
		ModelID    string `json:"modelID"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProviderID == "" || req.ModelID == "" {
		writeError(w, http.StatusBadRequest, errkind.Input, "providerID and modelID are required")
		return
	}

	if err := s.orchestrator.SwitchModel(req.ProviderID, req.ModelID); err != nil {
		writeError(w, http.StatusBadRequest, errkind.Config, err.Error())
		return
	}
	writeSuccess(w)
}

// switchEnvironment re-reads config and re-wires tools/MCP/model for a new
// environment directory.
func (s *Server) switchEnvironment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EnvDir string `json:"envDir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.EnvDir == "" {
		writeError(w, http.StatusBadRequest, errkind.Input, "envDir is required")
		return
	}

	if err := s.orchestrator.SwitchEnvironment(r.Context(), req.EnvDir); err != nil {
		writeError(w, http.StatusInternalServerError, errkind.Config, err.Error())
		return
	}
	writeSuccess(w)
}

// mcpStatus reports every managed MCP server.
func (s *Server) mcpStatus(w http.ResponseWriter, r *http.Request) {
	if s.mcpManager == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.mcpManager.Status())
}

// listTools returns the registered tool names and descriptions.
func (s *Server) listTools(w http.ResponseWriter, r *http.Request) {
	type toolView struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}

	tools := s.toolReg.List()
	out := make([]toolView, 0, len(tools))
	for _, t := range tools {
		out = append(out, toolView{Name: t.Name(), Description: t.Description()})
	}
	writeJSON(w, http.StatusOK, out)
}

// toolMetrics returns the control plane's per-tool rolling aggregates.
func (s *Server) toolMetrics(w http.ResponseWriter, r *http.Request) {
	processor := s.sessionService.GetProcessor()
	if processor == nil {
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	writeJSON(w, http.StatusOK, processor.ToolMetrics())
}
