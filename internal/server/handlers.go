// internal/server/handlers.go
package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gptrelay/api/schemas"
	"github.com/xkilldash9x/gptrelay/internal/chat"
	"github.com/xkilldash9x/gptrelay/internal/config"
)

// maxBodyBytes caps a /chat request body. Attachments travel base64-encoded
// inside the JSON, so this bounds decoded image size at roughly 24 MiB.
const maxBodyBytes = 32 << 20

type handler struct {
	cfg     *config.Config
	submit  Submitter
	logger  *zap.Logger
	limiter *keyLimiter
}

func newHandler(cfg *config.Config, submitter Submitter, logger *zap.Logger) *handler {
	h := &handler{cfg: cfg, submit: submitter, logger: logger}
	if cfg.Server.RateLimitPerMinute > 0 {
		h.limiter = newKeyLimiter(cfg.Server.RateLimitPerMinute)
	}
	return h
}

// handleChat decodes and validates the wire request, then blocks on the
// serialized core until the reply is complete or the budget runs out.
// Anything wrong with the request itself is a 400; anything that goes wrong
// upstream of the relay is a 502 with the diagnostic as the error text.
func (h *handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req schemas.ChatRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if err := req.Validate(); err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	images, err := schemas.BuildImagePayloads(req.Images)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.submit.Submit(r.Context(), submissionFromWire(&req, images))
	switch {
	case errors.Is(err, chat.ErrInvalidRequest):
		h.writeError(w, r, http.StatusBadRequest, err.Error())
	case err != nil:
		h.writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		h.writeJSON(w, r, http.StatusOK, schemas.ChatResponse{
			Response:       res.Text,
			ConversationID: res.ConversationID,
		})
	}
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, schemas.HealthResponse{Status: "ok"})
}

// submissionFromWire maps the validated wire request onto the core's terms.
// Wire seconds become durations; a SLOW request with no explicit delay picks
// up the configured default inside the core.
func submissionFromWire(req *schemas.ChatRequest, images []schemas.ImagePayload) chat.Request {
	mode, _ := schemas.NormalizeInputMode(req.InputMode)

	sub := chat.Request{
		Message:        req.Message,
		ConversationID: req.ConversationID,
		TemporaryChat:  req.TemporaryChat,
		Timeout:        time.Duration(req.Timeout) * time.Second,
		KeyDelay:       time.Duration(req.InputDelay * float64(time.Second)),
	}
	if mode == schemas.InputModeSlow {
		sub.Mode = chat.InputThrottled
	}
	for _, img := range images {
		sub.Attachments = append(sub.Attachments, chat.Attachment{
			Name:        img.Name,
			ContentType: img.ContentType,
			Data:        img.Data,
		})
	}
	return sub
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("writing response body",
			zap.Error(err),
			zap.String("request_id", requestIDFrom(r.Context())))
	}
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	h.writeJSON(w, r, status, schemas.ErrorResponse{Error: msg})
}
