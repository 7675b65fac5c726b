package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mmelo/zapai/internal/memory"
	"github.com/mmelo/zapai/internal/whatsapp"
)

// User-facing fallback replies. Internal errors never reach the user raw.
const (
	replyRateLimited = "You're sending messages too quickly. Please wait a minute and try again. 🙏"
	replyUnsupported = "Sorry, I can only understand text messages and images right now."
	replyMediaFail   = "I couldn't download that media. Please try sending it again."
	replyAIFail      = "Sorry, I ran into a problem generating a response. Please try again in a moment."
)

// Sender delivers replies and resolves inbound media.
type Sender interface {
	SendText(ctx context.Context, to, body string) error
	DownloadMedia(ctx context.Context, mediaID string) ([]byte, string, error)
}

// Completer generates replies from conversation context.
type Completer interface {
	GenerateReply(ctx context.Context, history []memory.Entry, text string) (string, error)
	GenerateImageReply(ctx context.Context, history []memory.Entry, image []byte, mimeType, caption string) (string, error)
}

// Limiter gates message processing per identity.
type Limiter interface {
	Allow(identity string) bool
}

type Options struct {
	// Timeout bounds one message's downstream work (media + completion + send).
	Timeout time.Duration
	// RateLimitQuiet drops rate-limited messages silently instead of replying.
	RateLimitQuiet bool
	// RateLimitPerMinute is reported by the stats endpoint.
	RateLimitPerMinute int
}

// Handler orchestrates one inbound message: rate gate, context load,
// completion, history update, reply dispatch.
type Handler struct {
	gateway   Sender
	completer Completer
	store     memory.Store
	limiter   Limiter
	locks     *userLocks
	stats     *Stats
	opts      Options
}

func NewHandler(gateway Sender, completer Completer, store memory.Store, limiter Limiter, opts Options) *Handler {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Handler{
		gateway:   gateway,
		completer: completer,
		store:     store,
		limiter:   limiter,
		locks:     newUserLocks(),
		stats:     &Stats{},
		opts:      opts,
	}
}

// HandleMessage processes one parsed webhook message. Messages from the same
// identity are serialized; different identities run in parallel. All failures
// are resolved here; nothing propagates to the webhook response.
func (h *Handler) HandleMessage(msg whatsapp.InboundMessage) {
	h.locks.with(msg.From, func() {
		// Detached from the request context: the webhook ACK must not wait
		// on (or cancel) downstream work beyond this deadline.
		ctx, cancel := context.WithTimeout(context.Background(), h.opts.Timeout)
		defer cancel()
		h.process(ctx, msg)
	})
}

func (h *Handler) process(ctx context.Context, msg whatsapp.InboundMessage) {
	if !h.limiter.Allow(msg.From) {
		log.Debug().Str("from", msg.From).Msg("bot: rate limited")
		if !h.opts.RateLimitQuiet {
			h.reply(ctx, msg.From, replyRateLimited)
		}
		return
	}

	if msg.Kind == whatsapp.KindUnsupported {
		log.Debug().Str("from", msg.From).Str("type", msg.MediaType).Msg("bot: unsupported media")
		h.reply(ctx, msg.From, replyUnsupported)
		return
	}

	history, err := h.store.History(ctx, msg.From)
	if err != nil {
		log.Error().Err(err).Str("from", msg.From).Msg("bot: failed to load history")
	}

	userContent, reply, ok := h.generate(ctx, msg, history)
	if !ok {
		return
	}

	// Record both turns only after a successful generation; a failed
	// exchange must leave the history untouched.
	now := time.Now()
	err = h.store.Append(ctx, msg.From,
		memory.Entry{Role: memory.RoleUser, Content: userContent, Timestamp: now},
		memory.Entry{Role: memory.RoleAssistant, Content: reply, Timestamp: now},
	)
	if err != nil {
		log.Error().Err(err).Str("from", msg.From).Msg("bot: failed to save history")
	}

	h.reply(ctx, msg.From, reply)
	h.stats.RecordMessage()
}

// generate runs the text or image completion path. On failure it sends the
// appropriate fallback and reports !ok.
func (h *Handler) generate(ctx context.Context, msg whatsapp.InboundMessage, history []memory.Entry) (userContent, reply string, ok bool) {
	switch msg.Kind {
	case whatsapp.KindImage:
		image, mimeType, err := h.gateway.DownloadMedia(ctx, msg.MediaID)
		if err != nil {
			log.Warn().Err(err).Str("from", msg.From).Str("media_id", msg.MediaID).Msg("bot: media fetch failed")
			h.reply(ctx, msg.From, replyMediaFail)
			return "", "", false
		}
		if mimeType == "" {
			mimeType = msg.MimeType
		}

		reply, err = h.completer.GenerateImageReply(ctx, history, image, mimeType, msg.Caption)
		if err != nil {
			log.Warn().Err(err).Str("from", msg.From).Msg("bot: image completion failed")
			h.reply(ctx, msg.From, replyAIFail)
			return "", "", false
		}

		userContent = msg.Caption
		if userContent == "" {
			userContent = "[image]"
		}
		return userContent, reply, true

	default:
		reply, err := h.completer.GenerateReply(ctx, history, msg.Text)
		if err != nil {
			log.Warn().Err(err).Str("from", msg.From).Msg("bot: completion failed")
			h.reply(ctx, msg.From, replyAIFail)
			return "", "", false
		}
		return msg.Text, reply, true
	}
}

// reply sends best-effort: delivery failures are logged, never retried and
// never surfaced to the webhook layer.
func (h *Handler) reply(ctx context.Context, to, body string) {
	if err := h.gateway.SendText(ctx, to, body); err != nil {
		log.Error().Err(err).Str("to", to).Msg("bot: failed to send reply")
	}
}

// CleanupLocks drops per-identity locks idle longer than maxAge.
func (h *Handler) CleanupLocks(maxAge time.Duration) {
	h.locks.cleanup(maxAge)
}
