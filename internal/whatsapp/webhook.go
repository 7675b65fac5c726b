package whatsapp

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// Kind tags what an inbound message carries.
type Kind string

const (
	KindText        Kind = "text"
	KindImage       Kind = "image"
	KindUnsupported Kind = "unsupported"
)

// InboundMessage is the parsed form of one actionable webhook message.
// MediaID/MimeType/Caption are set for KindImage; MediaType names the
// provider's message type for KindUnsupported.
type InboundMessage struct {
	From      string
	ID        string
	Kind      Kind
	Text      string
	MediaID   string
	MimeType  string
	Caption   string
	MediaType string
}

// MessageHandler is called for each parsed inbound message.
type MessageHandler func(msg InboundMessage)

type WebhookHandler struct {
	verifyToken string
	onMessage   MessageHandler
}

func NewWebhookHandler(verifyToken string, onMessage MessageHandler) *WebhookHandler {
	return &WebhookHandler{
		verifyToken: verifyToken,
		onMessage:   onMessage,
	}
}

// HandleVerify handles the GET webhook subscription handshake from Meta.
// Reference: https://developers.facebook.com/docs/whatsapp/cloud-api/get-started#webhook-verification
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if token == h.verifyToken {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	http.Error(w, "Forbidden", http.StatusForbidden)
}

// HandleIncoming processes webhook POST deliveries. Meta requires a prompt
// 200 OK regardless of internal outcome, otherwise it retries the delivery.
func (h *WebhookHandler) HandleIncoming(w http.ResponseWriter, r *http.Request) {
	var payload WebhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Warn().Err(err).Msg("webhook: failed to decode payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	for _, msg := range ParseInbound(payload) {
		h.onMessage(msg)
	}

	w.WriteHeader(http.StatusOK)
}

// ParseInbound flattens a webhook payload into actionable messages.
// Status updates and other non-message events yield nothing.
func ParseInbound(payload WebhookPayload) []InboundMessage {
	var out []InboundMessage
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if parsed, ok := parseMessage(msg); ok {
					out = append(out, parsed)
				}
			}
		}
	}
	return out
}

func parseMessage(msg Message) (InboundMessage, bool) {
	if msg.From == "" {
		return InboundMessage{}, false
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil || msg.Text.Body == "" {
			return InboundMessage{}, false
		}
		return InboundMessage{From: msg.From, ID: msg.ID, Kind: KindText, Text: msg.Text.Body}, true
	case "image":
		if msg.Image == nil || msg.Image.ID == "" {
			return InboundMessage{}, false
		}
		return InboundMessage{
			From:     msg.From,
			ID:       msg.ID,
			Kind:     KindImage,
			MediaID:  msg.Image.ID,
			MimeType: msg.Image.MimeType,
			Caption:  msg.Image.Caption,
		}, true
	case "":
		return InboundMessage{}, false
	default:
		// video, audio, document, sticker, location, contacts, ...
		return InboundMessage{From: msg.From, ID: msg.ID, Kind: KindUnsupported, MediaType: msg.Type}, true
	}
}
