package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/detectql/detectql/internal/assistant"
	"github.com/detectql/detectql/internal/auth"
)

const maxChatBodyBytes = 64 << 10

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func handleChat(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "CHAT_NOT_CONFIGURED", "assistant is not configured", false, nil)
		return
	}
	if !requireRole(w, r, auth.RoleChatUser) {
		return
	}

	var req chatRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid chat request body", false, map[string]any{"details": err.Error()})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", "prompt is required", false, nil)
		return
	}

	response, err := deps.Assistant.Answer(r.Context(), req.Prompt)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyPrompt) {
			writeError(r.Context(), w, http.StatusBadRequest, "PROMPT_REQUIRED", err.Error(), false, nil)
			return
		}
		writeError(r.Context(), w, http.StatusBadGateway, "ANSWER_FAILED", "failed to answer question", true, map[string]any{"details": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, response)
}
