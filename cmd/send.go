// -- cmd/send.go --
package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	json "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/gptrelay/api/schemas"
)

const (
	defaultSendURL     = "http://127.0.0.1:8000/chat"
	defaultSendMessage = "What is the capital of France? Reply with one word."

	// sendClientGrace pads the HTTP client budget past the server-side
	// response timeout so the client never gives up first.
	sendClientGrace = time.Minute
	// sendDefaultBudget bounds the wait when no explicit timeout is given and
	// the server is using its own default.
	sendDefaultBudget = 240 * time.Second
)

var sendFlags struct {
	url            string
	apiKey         string
	conversationID string
	temporaryChat  bool
	noTemporary    bool
	timeout        int
	slow           bool
	delay          float64
	images         []string
}

var sendCmd = &cobra.Command{
	Use:   "send [message...]",
	Short: "Send a prompt to a running relay and print the reply",
	Long: `send posts a prompt to a running relay instance and prints the reply as
plain text, followed by the conversation id when one was assigned. Message
words are joined with spaces; with no words a canned test prompt is sent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := sendOptionsFromFlags(cmd, args)
		if err != nil {
			return err
		}
		return runSend(cmd.Context(), opts, cmd.OutOrStdout())
	},
}

func init() {
	f := sendCmd.Flags()
	f.StringVar(&sendFlags.url, "url", defaultSendURL, "relay /chat endpoint (or set CHATGPT_API_URL)")
	f.StringVar(&sendFlags.apiKey, "api-key", "", "API key for authentication (or set CHATGPT_API_KEY)")
	f.StringVar(&sendFlags.conversationID, "conversation-id", "", "send the message to an existing conversation id")
	f.BoolVar(&sendFlags.temporaryChat, "temporary-chat", false, "enable temporary chat before sending the message")
	f.BoolVar(&sendFlags.noTemporary, "no-temporary-chat", false, "disable temporary chat before sending the message")
	f.IntVar(&sendFlags.timeout, "timeout", 0, "response timeout in seconds (0 uses the server default)")
	f.BoolVar(&sendFlags.slow, "slow", false, "type the prompt character by character")
	f.Float64Var(&sendFlags.delay, "delay", 0, "per-keystroke delay in seconds, used with --slow")
	f.StringArrayVar(&sendFlags.images, "image", nil, "path to an image file to attach; repeat for multiple images")

	rootCmd.AddCommand(sendCmd)
}

type sendOptions struct {
	url            string
	apiKey         string
	message        string
	conversationID string
	temporaryChat  *bool
	timeout        int
	slow           bool
	delay          float64
	images         []string
}

// sendOptionsFromFlags folds flags, args, and the legacy environment into one
// options value. Env lookups happen here, after the root command has loaded
// .env, not at flag registration time.
func sendOptionsFromFlags(cmd *cobra.Command, args []string) (sendOptions, error) {
	if sendFlags.temporaryChat && sendFlags.noTemporary {
		return sendOptions{}, fmt.Errorf("choose only one of --temporary-chat or --no-temporary-chat")
	}

	opts := sendOptions{
		url:            sendFlags.url,
		apiKey:         sendFlags.apiKey,
		message:        defaultSendMessage,
		conversationID: sendFlags.conversationID,
		timeout:        sendFlags.timeout,
		slow:           sendFlags.slow,
		delay:          sendFlags.delay,
		images:         sendFlags.images,
	}
	if len(args) > 0 {
		opts.message = strings.Join(args, " ")
	}
	if !cmd.Flags().Changed("url") {
		if env := os.Getenv("CHATGPT_API_URL"); env != "" {
			opts.url = env
		}
	}
	if opts.apiKey == "" {
		opts.apiKey = os.Getenv("CHATGPT_API_KEY")
	}
	switch {
	case sendFlags.temporaryChat:
		v := true
		opts.temporaryChat = &v
	case sendFlags.noTemporary:
		v := false
		opts.temporaryChat = &v
	}
	return opts, nil
}

func runSend(ctx context.Context, opts sendOptions, out io.Writer) error {
	wire, err := buildWireRequest(opts)
	if err != nil {
		return err
	}
	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	budget := sendDefaultBudget
	if opts.timeout > 0 {
		budget = time.Duration(opts.timeout) * time.Second
	}
	reqCtx, cancel := context.WithTimeout(ctx, budget+sendClientGrace)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, opts.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if opts.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+opts.apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling %s: %w", opts.url, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errBody schemas.ErrorResponse
		if json.Unmarshal(payload, &errBody) == nil && errBody.Error != "" {
			return fmt.Errorf("request failed (%d): %s", resp.StatusCode, errBody.Error)
		}
		return fmt.Errorf("request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var result schemas.ChatResponse
	if err := json.Unmarshal(payload, &result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	// The reply is printed as-is: the server already ran the artifact filter
	// when it is enabled there.
	fmt.Fprintln(out, result.Response)
	if result.ConversationID != "" {
		fmt.Fprintf(out, "\n--- conversation_id: %s ---\n", result.ConversationID)
	}
	return nil
}

// buildWireRequest assembles the POST /chat body. Mode and delay ride along
// only when SLOW typing was asked for, mirroring how the server defaults the
// omitted fields.
func buildWireRequest(opts sendOptions) (*schemas.ChatRequest, error) {
	wire := &schemas.ChatRequest{
		Message:        opts.message,
		ConversationID: opts.conversationID,
		TemporaryChat:  opts.temporaryChat,
		Timeout:        opts.timeout,
	}
	if opts.slow {
		wire.InputMode = string(schemas.InputModeSlow)
		wire.InputDelay = opts.delay
	}
	for _, path := range opts.images {
		img, err := loadImageAttachment(path)
		if err != nil {
			return nil, err
		}
		wire.Images = append(wire.Images, img)
	}
	return wire, nil
}

func loadImageAttachment(path string) (schemas.ChatImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return schemas.ChatImage{}, fmt.Errorf("reading image %s: %w", path, err)
	}

	name := filepath.Base(path)
	contentType, _, _ := mime.ParseMediaType(mime.TypeByExtension(filepath.Ext(name)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return schemas.ChatImage{
		Name:        name,
		ContentType: contentType,
		DataBase64:  base64.StdEncoding.EncodeToString(data),
	}, nil
}
