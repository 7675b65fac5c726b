package bot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmelo/zapai/internal/ai"
	"github.com/mmelo/zapai/internal/memory"
	"github.com/mmelo/zapai/internal/whatsapp"
)

type sentMessage struct {
	to, body string
}

type fakeGateway struct {
	sent      []sentMessage
	sendErr   error
	media     []byte
	mediaMime string
	mediaErr  error
}

func (g *fakeGateway) SendText(_ context.Context, to, body string) error {
	g.sent = append(g.sent, sentMessage{to: to, body: body})
	return g.sendErr
}

func (g *fakeGateway) DownloadMedia(_ context.Context, _ string) ([]byte, string, error) {
	return g.media, g.mediaMime, g.mediaErr
}

type fakeCompleter struct {
	reply string
	err   error

	calls      int
	gotHistory []memory.Entry
	gotText    string
	gotImage   []byte
	gotMime    string
	gotCaption string
}

func (c *fakeCompleter) GenerateReply(_ context.Context, history []memory.Entry, text string) (string, error) {
	c.calls++
	c.gotHistory = history
	c.gotText = text
	return c.reply, c.err
}

func (c *fakeCompleter) GenerateImageReply(_ context.Context, history []memory.Entry, image []byte, mimeType, caption string) (string, error) {
	c.calls++
	c.gotHistory = history
	c.gotImage = image
	c.gotMime = mimeType
	c.gotCaption = caption
	return c.reply, c.err
}

type fakeLimiter struct {
	allow bool
}

func (l *fakeLimiter) Allow(string) bool { return l.allow }

func textMsg(from, text string) whatsapp.InboundMessage {
	return whatsapp.InboundMessage{From: from, ID: "wamid.t", Kind: whatsapp.KindText, Text: text}
}

func newTestHandler(gw *fakeGateway, comp *fakeCompleter, allow bool, opts Options) (*Handler, *memory.MemoryStore) {
	store := memory.NewMemoryStore(10)
	h := NewHandler(gw, comp, store, &fakeLimiter{allow: allow}, opts)
	return h, store
}

func TestTextMessageAppendsBothTurns(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "Hi! How can I help you today?"}
	h, store := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(textMsg("5511999990000", "Hello"))

	history, err := store.History(context.Background(), "5511999990000")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, memory.RoleUser, history[0].Role)
	assert.Equal(t, "Hello", history[0].Content)
	assert.Equal(t, memory.RoleAssistant, history[1].Role)
	assert.Equal(t, "Hi! How can I help you today?", history[1].Content)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "5511999990000", gw.sent[0].to)
	assert.Equal(t, "Hi! How can I help you today?", gw.sent[0].body)
	assert.EqualValues(t, 1, h.stats.MessagesProcessed())
}

func TestHistoryIsPassedToCompleter(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "ok"}
	h, store := newTestHandler(gw, comp, true, Options{})

	require.NoError(t, store.Append(context.Background(), "u1",
		memory.Entry{Role: memory.RoleUser, Content: "earlier", Timestamp: time.Now()},
	))

	h.HandleMessage(textMsg("u1", "and now?"))

	require.Len(t, comp.gotHistory, 1)
	assert.Equal(t, "earlier", comp.gotHistory[0].Content)
	assert.Equal(t, "and now?", comp.gotText)
}

func TestCompletionFailureLeavesHistoryUntouched(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{err: ai.ErrCompletion}
	h, store := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(textMsg("u1", "Hello"))

	history, err := store.History(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, history)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, replyAIFail, gw.sent[0].body)
	assert.Zero(t, h.stats.MessagesProcessed())
}

func TestUnsupportedMediaShortCircuits(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "should not be called"}
	h, store := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(whatsapp.InboundMessage{
		From: "u1", Kind: whatsapp.KindUnsupported, MediaType: "video",
	})

	assert.Zero(t, comp.calls)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, replyUnsupported, gw.sent[0].body)

	history, _ := store.History(context.Background(), "u1")
	assert.Empty(t, history)
}

func TestRateLimitedRepliesWithoutInvokingAI(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "nope"}
	h, _ := newTestHandler(gw, comp, false, Options{})

	h.HandleMessage(textMsg("u1", "Hello"))

	assert.Zero(t, comp.calls)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, replyRateLimited, gw.sent[0].body)
}

func TestRateLimitedQuietDropsSilently(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "nope"}
	h, _ := newTestHandler(gw, comp, false, Options{RateLimitQuiet: true})

	h.HandleMessage(textMsg("u1", "Hello"))

	assert.Zero(t, comp.calls)
	assert.Empty(t, gw.sent)
}

func TestImageFlow(t *testing.T) {
	gw := &fakeGateway{media: []byte{0xff, 0xd8}, mediaMime: "image/jpeg"}
	comp := &fakeCompleter{reply: "That is a sunset over the sea."}
	h, store := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(whatsapp.InboundMessage{
		From: "u1", Kind: whatsapp.KindImage, MediaID: "media-1", Caption: "where is this?",
	})

	assert.Equal(t, []byte{0xff, 0xd8}, comp.gotImage)
	assert.Equal(t, "image/jpeg", comp.gotMime)
	assert.Equal(t, "where is this?", comp.gotCaption)

	history, err := store.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "where is this?", history[0].Content)
	assert.Equal(t, "That is a sunset over the sea.", history[1].Content)
}

func TestImageWithoutCaptionStoresPlaceholder(t *testing.T) {
	gw := &fakeGateway{media: []byte{1}, mediaMime: "image/png"}
	comp := &fakeCompleter{reply: "A diagram."}
	h, store := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(whatsapp.InboundMessage{From: "u1", Kind: whatsapp.KindImage, MediaID: "m1"})

	history, err := store.History(context.Background(), "u1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "[image]", history[0].Content)
}

func TestMediaFetchFailure(t *testing.T) {
	gw := &fakeGateway{mediaErr: whatsapp.ErrMediaFetch}
	comp := &fakeCompleter{reply: "unused"}
	h, store := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(whatsapp.InboundMessage{From: "u1", Kind: whatsapp.KindImage, MediaID: "m1"})

	assert.Zero(t, comp.calls)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, replyMediaFail, gw.sent[0].body)

	history, _ := store.History(context.Background(), "u1")
	assert.Empty(t, history)
}

func TestSendFailureStillRecordsHistory(t *testing.T) {
	gw := &fakeGateway{sendErr: errors.New("gateway down")}
	comp := &fakeCompleter{reply: "hi"}
	h, store := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(textMsg("u1", "Hello"))

	history, err := store.History(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.EqualValues(t, 1, h.stats.MessagesProcessed())
}

func TestHandleHealth(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "hi"}
	h, _ := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(textMsg("u1", "Hello"))

	w := httptest.NewRecorder()
	h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 1, body["active_conversations"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestHandleStats(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "hi"}
	h, _ := newTestHandler(gw, comp, true, Options{RateLimitPerMinute: 30})

	h.HandleMessage(textMsg("u1", "Hello"))
	h.HandleMessage(textMsg("u2", "Oi"))

	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 2, body["active_conversations"])
	assert.EqualValues(t, 2, body["messages_processed"])
	assert.EqualValues(t, 30, body["rate_limit_per_minute"])
}

func TestHandleConversation(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{reply: "Oi, Ana!"}
	h, _ := newTestHandler(gw, comp, true, Options{})

	h.HandleMessage(textMsg("5511999990000", "Oi"))

	r := chi.NewRouter()
	r.Get("/conversations/{identity}", h.HandleConversation)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/5511999990000", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Identity string         `json:"identity"`
		Entries  []memory.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "5511999990000", body.Identity)
	require.Len(t, body.Entries, 2)
	assert.Equal(t, "Oi", body.Entries[0].Content)
	assert.Equal(t, "Oi, Ana!", body.Entries[1].Content)
}

func TestHandleConversationUnseenIdentity(t *testing.T) {
	gw := &fakeGateway{}
	comp := &fakeCompleter{}
	h, _ := newTestHandler(gw, comp, true, Options{})

	r := chi.NewRouter()
	r.Get("/conversations/{identity}", h.HandleConversation)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/conversations/nobody", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Entries []memory.Entry `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Empty(t, body.Entries)
}
