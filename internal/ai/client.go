package ai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmelo/zapai/internal/memory"
)

const openAIEndpoint = "https://api.openai.com/v1/chat/completions"

// Options configure the completion requests sent by the Client.
type Options struct {
	Model        string
	MaxTokens    int
	Temperature  float64
	SystemPrompt string // empty uses DefaultSystemPrompt
	Timeout      time.Duration
}

// Client calls the OpenAI chat-completions API.
type Client struct {
	apiKey   string
	opts     Options
	endpoint string
	http     *http.Client
}

func NewClient(apiKey string, opts Options) *Client {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Client{
		apiKey:   apiKey,
		opts:     opts,
		endpoint: openAIEndpoint,
		http:     &http.Client{Timeout: opts.Timeout},
	}
}

// --- OpenAI API types ---

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// chatMessage content is either a plain string or, for vision requests,
// a list of contentPart.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// GenerateReply produces a reply to text, given the prior conversation in
// chronological order.
func (c *Client) GenerateReply(ctx context.Context, history []memory.Entry, text string) (string, error) {
	messages := c.baseMessages(history)
	messages = append(messages, chatMessage{Role: "user", Content: text})
	return c.complete(ctx, messages)
}

// GenerateImageReply produces a reply to an inbound image. The caption, when
// present, steers the analysis.
func (c *Client) GenerateImageReply(ctx context.Context, history []memory.Entry, image []byte, mimeType, caption string) (string, error) {
	if caption == "" {
		caption = "What is in this image?"
	}

	dataURI := fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(image))
	messages := c.baseMessages(history)
	messages = append(messages, chatMessage{Role: "user", Content: []contentPart{
		{Type: "text", Text: caption},
		{Type: "image_url", ImageURL: &imageURL{URL: dataURI}},
	}})
	return c.complete(ctx, messages)
}

func (c *Client) baseMessages(history []memory.Entry) []chatMessage {
	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: c.opts.SystemPrompt})
	for _, e := range history {
		messages = append(messages, chatMessage{Role: e.Role, Content: e.Content})
	}
	return messages
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.opts.Model,
		Messages:    messages,
		MaxTokens:   c.opts.MaxTokens,
		Temperature: c.opts.Temperature,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading response: %v", ErrCompletion, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d: %s", ErrCompletion, resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", fmt.Errorf("%w: unmarshal: %v", ErrCompletion, err)
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("%w: empty response", ErrCompletion)
	}

	return chatResp.Choices[0].Message.Content, nil
}
