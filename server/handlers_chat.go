package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/onnwee/livecast/backend/apperr"
	"github.com/onnwee/livecast/backend/store"
	"github.com/onnwee/livecast/backend/telemetry"
)

const sseKeepAlive = 15 * time.Second

// HandleListChat returns a page of chat history oldest first. before/after page by message id.
func (h *Handlers) HandleListChat(w http.ResponseWriter, r *http.Request) {
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	msgs, err := h.chat.List(r.Context(), st.ID, store.ChatQuery{
		BeforeID: parseInt64Query(r, "before"),
		AfterID:  parseInt64Query(r, "after"),
		Limit:    parseIntQuery(r, "limit", 50),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type chatInput struct {
	Message string `json:"message"`
}

func (h *Handlers) HandlePostChat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in chatInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	me := caller(r)
	if _, err := h.store.UpsertUser(ctx, me); err != nil {
		writeError(w, r, err)
		return
	}
	msg, err := h.chat.Post(ctx, st.ID, me, in.Message)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// HandleChatSSE streams new chat messages as Server-Sent Events. Clients resume with
// Last-Event-ID or ?after=<id>.
func (h *Handlers) HandleChatSSE(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	st, err := h.loadStream(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, apperr.Internal("streaming unsupported", nil))
		return
	}
	after := parseInt64Query(r, "after")
	if id, err := strconv.ParseInt(r.Header.Get("Last-Event-ID"), 10, 64); err == nil && id > after {
		after = id
	}

	// the feed outlives the server write timeout
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		telemetry.LoggerWithCorr(ctx).Debug("sse write deadline not cleared", slog.Any("err", err))
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	var mu sync.Mutex
	stop := keepAlive(w, flusher, &mu, sseKeepAlive)
	defer stop()

	err = h.chat.Follow(ctx, st.ID, after, func(m store.ChatMessage) error {
		b, err := json.Marshal(m)
		if err != nil {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if _, err := fmt.Fprintf(w, "id: %d\nevent: message\ndata: %s\n\n", m.ID, b); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("chat feed ended", slog.String("stream_id", st.ID), slog.Any("err", err))
	}
}

// keepAlive writes an SSE comment every interval while holding mu. The returned stop waits for
// the pinger to exit, so nothing writes to w once it returns.
func keepAlive(w io.Writer, flusher http.Flusher, mu *sync.Mutex, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-t.C:
				mu.Lock()
				_, _ = fmt.Fprint(w, ": ping\n\n")
				flusher.Flush()
				mu.Unlock()
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
