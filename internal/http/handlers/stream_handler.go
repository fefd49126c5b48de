// Live stream handler.
//
//   - GET /stream   (websocket; token via Authorization or ?access_token=)
//
// Each connection owns one change-feed subscription filtered to events that
// concern the caller: their own jobs, bids, threads and completion records,
// plus new and closed jobs in the provider's categories (and any ?category=
// the client asks for). Acceptance notices go through an AcceptanceFilter,
// completion notices through a CompletionLatch; both are per connection.
//
// On connect each caller first gets a replay of the jobs they completed, and
// providers also of their accepted bids, as "added" changes. A completion
// or an acceptance that landed while the client was away still notifies.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sahulathub/sahulat-hub/internal/domain"
	"github.com/sahulathub/sahulat-hub/internal/events"
	"github.com/sahulathub/sahulat-hub/internal/http/middleware"
	"github.com/sahulathub/sahulat-hub/internal/services"
)

const (
	streamWriteWait  = 10 * time.Second
	streamPongWait   = 60 * time.Second
	streamPingPeriod = (streamPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers cannot send the Authorization header on upgrades; the token
	// check, not the origin, guards the stream.
	CheckOrigin: func(r *http.Request) bool { return true },
}

var streamConns = prometheus.NewGauge(prometheus.GaugeOpts{
	Namespace: "sahulat",
	Name:      "stream_connections",
	Help:      "Open live stream websocket connections.",
})

func init() {
	prometheus.MustRegister(streamConns)
}

// streamGate decides which events one connection sees.
type streamGate struct {
	userID string
	accept *services.AcceptanceFilter
	latch  services.CompletionLatch
}

func newStreamGate(userID string, window time.Duration, clock services.Clock) *streamGate {
	return &streamGate{userID: userID, accept: services.NewAcceptanceFilter(window, clock)}
}

// admit reports whether ev should be written to the connection.
func (g *streamGate) admit(ev events.Event) bool {
	switch ev.Topic {
	case events.TopicBidAccepted:
		bid, isBid := bidOf(ev.Data)
		if !isBid {
			return false
		}
		if bid.ProviderID != g.userID {
			return true
		}
		return g.accept.Notify(ev.Change, bid)
	case events.TopicJobCompleted:
		v, isView := ev.Data.(services.StatusView)
		return isView && g.latch.Observe(v.JobID, v.State)
	default:
		return true
	}
}

func bidOf(v any) (domain.Bid, bool) {
	switch b := v.(type) {
	case *domain.Bid:
		if b == nil {
			return domain.Bid{}, false
		}
		return *b, true
	case domain.Bid:
		return b, true
	}
	return domain.Bid{}, false
}

// Stream godoc
// @ID          stream
// @Summary     Live change stream (websocket)
// @Description Upgrades to a websocket that pushes JSON change events
// @Description ({"type","change","key","data","at"}) relevant to the caller.
// @Tags        Stream
// @Security    BearerAuth
// @Param       access_token  query  string  false  "Bearer token when headers cannot be set"
// @Param       category      query  string  false  "Extra job category to follow (repeatable)"
// @Success     101  {string}  string  "Switching Protocols"
// @Failure     401  {object}  handlers.ErrorResponse
// @Failure     503  {object}  handlers.ErrorResponse  "Stream unavailable"
// @Router      /stream [get]
func (h *Handlers) Stream(c *gin.Context) {
	sess, found := session(c)
	if !found {
		return
	}
	if h.broker == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "stream unavailable")
		return
	}
	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	cats := c.QueryArray("category")
	if sess.IsProvider() && h.profiles != nil {
		if p, err := h.profiles.Me(ctx, sess); err == nil {
			cats = append(cats, p.Categories...)
		}
	}
	filter := events.ForUser(sess.UserID)
	if len(cats) > 0 {
		filter = events.Any(filter, events.ForCategories(cats...))
	}

	// Subscribe before the replay so nothing falls between the two.
	sub := h.broker.Subscribe(filter)
	defer sub.Close()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		lg.Warn().Err(err).Msg("stream upgrade failed")
		return
	}
	defer conn.Close()
	streamConns.Inc()
	defer streamConns.Dec()

	gate := newStreamGate(sess.UserID, h.freshness, h.clock)
	if err := h.replayCompletions(ctx, conn, gate, sess); err != nil {
		lg.Debug().Err(err).Msg("stream replay aborted")
		return
	}
	if sess.IsProvider() {
		if err := h.replayAcceptances(ctx, conn, gate, sess.UserID); err != nil {
			lg.Debug().Err(err).Msg("stream replay aborted")
			return
		}
	}

	closed := make(chan struct{})
	go readPump(conn, closed)

	ping := time.NewTicker(streamPingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-closed:
			return
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(streamWriteWait)); err != nil {
				return
			}
		case ev, open := <-sub.C():
			if !open {
				_ = writeClose(conn, websocket.CloseGoingAway, "server shutting down")
				return
			}
			if !gate.admit(ev) {
				continue
			}
			if err := writeEvent(conn, ev); err != nil {
				lg.Debug().Err(err).Msg("stream write failed")
				return
			}
			if ev.Topic == events.TopicSignedOut {
				_ = writeClose(conn, websocket.ClosePolicyViolation, "signed out")
				return
			}
		}
	}
}

func (h *Handlers) replayAcceptances(ctx context.Context, conn *websocket.Conn, gate *streamGate, providerID string) error {
	bids, err := h.bids.AcceptedBidsForProvider(ctx, providerID)
	if err != nil {
		return nil // live notices still work
	}
	now := h.clock.Now()
	for _, b := range bids {
		ev := events.Event{Topic: events.TopicBidAccepted, Change: events.Added, Key: b.ID, Data: b, At: now}
		if !gate.admit(ev) {
			continue
		}
		if err := writeEvent(conn, ev); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handlers) replayCompletions(ctx context.Context, conn *websocket.Conn, gate *streamGate, sess services.Session) error {
	if h.status == nil {
		return nil
	}
	views, err := h.status.CompletedFor(ctx, sess)
	if err != nil {
		return nil // live completions still work
	}
	now := h.clock.Now()
	for _, v := range views {
		ev := events.Event{Topic: events.TopicJobCompleted, Change: events.Added, Key: v.JobID, Data: v, At: now}
		if !gate.admit(ev) {
			continue
		}
		if err := writeEvent(conn, ev); err != nil {
			return err
		}
	}
	return nil
}

// readPump drains client frames so control frames are processed, and closes
// done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(streamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(streamPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writeEvent(conn *websocket.Conn, ev events.Event) error {
	_ = conn.SetWriteDeadline(time.Now().Add(streamWriteWait))
	return conn.WriteJSON(ev)
}

func writeClose(conn *websocket.Conn, code int, reason string) error {
	return conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(streamWriteWait))
}
