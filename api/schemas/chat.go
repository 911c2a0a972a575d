package schemas

import (
	"encoding/base64"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
)

// -- Chat Wire Schemas --

// InputMode selects how prompt text is entered into the composer.
type InputMode string

const (
	// InputModeInstant sets the full text in one operation.
	InputModeInstant InputMode = "INSTANT"
	// InputModeSlow types character by character with a per-key delay.
	InputModeSlow InputMode = "SLOW"
)

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
	// Timeout is the response collection budget in whole seconds; zero means
	// the server default.
	Timeout   int    `json:"timeout,omitempty"`
	InputMode string `json:"input_mode,omitempty"`
	// InputDelay is the per-keystroke delay in seconds, only meaningful in
	// SLOW mode.
	InputDelay     float64 `json:"input_delay,omitempty"`
	ConversationID string  `json:"conversation_id,omitempty"`
	// TemporaryChat is tri-state: nil leaves the temporary-chat toggle alone,
	// true switches it on, false switches it off.
	TemporaryChat *bool       `json:"temporary_chat,omitempty"`
	Images        []ChatImage `json:"images,omitempty"`
}

// ChatImage is one attachment as it travels over the wire.
type ChatImage struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	DataBase64  string `json:"data_base64"`
}

// ChatResponse is the success body of POST /chat.
type ChatResponse struct {
	Response       string `json:"response"`
	ConversationID string `json:"conversation_id"`
}

// ErrorResponse carries a diagnostic message on any non-2xx outcome.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// ImagePayload is a decoded attachment ready for the automation core.
type ImagePayload struct {
	Name        string
	ContentType string
	Data        []byte
}

// -- Validation and Decoding --

// NormalizeInputMode validates the wire value, defaulting empty to INSTANT.
func NormalizeInputMode(raw string) (InputMode, error) {
	switch InputMode(strings.ToUpper(strings.TrimSpace(raw))) {
	case "", InputModeInstant:
		return InputModeInstant, nil
	case InputModeSlow:
		return InputModeSlow, nil
	default:
		return "", fmt.Errorf("input_mode must be %q or %q", InputModeInstant, InputModeSlow)
	}
}

// Validate checks the request fields that do not require decoding work.
func (r *ChatRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message cannot be empty")
	}
	if _, err := NormalizeInputMode(r.InputMode); err != nil {
		return err
	}
	if r.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if r.InputDelay < 0 {
		return fmt.Errorf("input_delay must not be negative")
	}
	return nil
}

// decodeBase64Payload accepts either bare base64 or a data URL and returns
// the raw bytes plus the MIME type declared by the data URL, if any.
func decodeBase64Payload(raw string) ([]byte, string, error) {
	value := strings.TrimSpace(raw)
	detectedType := ""

	if strings.HasPrefix(value, "data:") {
		header, payload, found := strings.Cut(value, ",")
		if !found {
			return nil, "", fmt.Errorf("invalid data URL format")
		}
		if !strings.Contains(header, ";base64") {
			return nil, "", fmt.Errorf("data URL must be base64-encoded")
		}
		mediaType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
		detectedType = strings.TrimSpace(mediaType)
		value = payload
	}

	decoded, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 image payload")
	}
	if len(decoded) == 0 {
		return nil, "", fmt.Errorf("image payload is empty")
	}
	return decoded, detectedType, nil
}

// BuildImagePayloads decodes every attachment in order. Content type
// resolution: declared value, then the data URL header, then a guess from the
// file extension; anything that does not resolve to an image type is
// rejected before the request reaches the browser.
func BuildImagePayloads(images []ChatImage) ([]ImagePayload, error) {
	if len(images) == 0 {
		return nil, nil
	}
	payloads := make([]ImagePayload, 0, len(images))
	for idx, image := range images {
		name := strings.TrimSpace(image.Name)
		if name == "" {
			return nil, fmt.Errorf("images[%d].name cannot be empty", idx)
		}
		binary, detectedType, err := decodeBase64Payload(image.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("images[%d]: %s", idx, err)
		}
		contentType := strings.TrimSpace(image.ContentType)
		if contentType == "" {
			contentType = detectedType
		}
		if contentType == "" {
			guessed, _, _ := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(name)))
			contentType = guessed
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if !strings.HasPrefix(contentType, "image/") {
			return nil, fmt.Errorf("images[%d].content_type must be an image MIME type", idx)
		}
		payloads = append(payloads, ImagePayload{
			Name:        name,
			ContentType: contentType,
			Data:        binary,
		})
	}
	return payloads, nil
}
