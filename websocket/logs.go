package websocket

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"golang.org/x/net/websocket"
)

const (
	facilityIDTag   = "facility_id"
	facilityUUIDTag = "facility_uuid"
)

func HandlerWithLogs(h Handler, summaryInterval time.Duration) Handler {
	ctx, cancel := context.WithCancel(context.Background())

	handler := &handlerWithLogs{
		Handler:            h,
		summaryInterval:    summaryInterval,
		closeSummaryWorker: cancel,
		counter:            make(map[string]int),
	}

	go handler.startSummaryWorker(ctx)
	return handler
}

type handlerWithLogs struct {
	Handler

	originalRequest *http.Request

	summaryInterval    time.Duration
	closeSummaryWorker func()
	counterMutex       sync.Mutex
	counter            map[string]int

	// Read by the summary worker.
	facilityMutex sync.Mutex
	facilityID    string
	facilityUUID  string
}

func (h *handlerWithLogs) HandleConnect(conn *websocket.Conn) {
	h.Handler.HandleConnect(conn)

	h.originalRequest = conn.Request()

	logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag("http_headers", h.httpHeaders()).
		Info("new client is connected")
}

func (h *handlerWithLogs) HandleJoin(ctx context.Context, respond ResponseSender, msg Msg) error {
	previous := h.CurrentFacility()

	if err := h.Handler.HandleJoin(ctx, respond, msg); err != nil {
		return err
	}

	f := h.CurrentFacility()
	if f == nil || f == previous {
		logs.WithTag(logs.ClientIDTag, h.GetClientID()).
			WithTag(facilityIDTag, msg.FacilityID).
			WithTag("request_id", msg.RequestID).
			WithTag("http_headers", h.httpHeaders()).
			Info("client failed to join a facility")
		return nil
	}

	h.facilityMutex.Lock()
	h.facilityID = h.GetFacilities().GlobalFacilityID(f.ID)
	h.facilityUUID = f.FacilityUUID
	h.facilityMutex.Unlock()

	h.entry().
		WithTag("http_headers", h.httpHeaders()).
		Info("client joined a facility")
	return nil
}

func (h *handlerWithLogs) HandleLeave(ctx context.Context, respond ResponseSender, msg Msg) error {
	entry := h.entry()

	if err := h.Handler.HandleLeave(ctx, respond, msg); err != nil {
		return err
	}

	if h.CurrentFacility() == nil {
		h.facilityMutex.Lock()
		h.facilityID = ""
		h.facilityUUID = ""
		h.facilityMutex.Unlock()

		entry.Info("client left a facility")
	}
	return nil
}

func (h *handlerWithLogs) HandleDisconnect(err error) {
	h.Handler.HandleDisconnect(err)

	entry := h.entry()
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, context.Canceled) {
		entry = entry.WithTag("reason", err.Error())
	}
	entry.Info("client disconnected")
}

func (h *handlerWithLogs) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
			h.entry().Error(errors.New("receiving message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msg.Type).
				Debug("message received")
			h.incCounter(msg.Type)
		}
		return msg, n, err
	}
}

func (h *handlerWithLogs) Sender() Sender {
	sender := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := sender(msg)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			h.entry().
				WithTag("msg_type", msg.Type).
				Error(errors.New("sending message failed").Wrap(err))
		} else if err == nil {
			h.entry().
				WithTag("msg_type", msg.Type).
				Debug("message sent")
		}
		return n, err
	}
}

func (h *handlerWithLogs) Close() {
	h.Handler.Close()
	h.closeSummaryWorker()
	h.logSummary()
}

func (h *handlerWithLogs) startSummaryWorker(ctx context.Context) {
	ticker := time.NewTicker(h.summaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			h.logSummary()
		}
	}
}

func (h *handlerWithLogs) incCounter(msgType string) {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	h.counter[msgType]++
}

func (h *handlerWithLogs) logSummary() {
	h.counterMutex.Lock()
	defer h.counterMutex.Unlock()

	if len(h.counter) == 0 {
		return
	}

	entry := h.entry().WithTag("time_interval", h.summaryInterval)

	for k, v := range h.counter {
		entry = entry.WithTag(k, v)
		delete(h.counter, k)
	}

	entry.Info("inbound message summary")
}

func (h *handlerWithLogs) entry() logs.Entry {
	h.facilityMutex.Lock()
	defer h.facilityMutex.Unlock()

	return logs.WithTag(logs.ClientIDTag, h.GetClientID()).
		WithTag(facilityIDTag, h.facilityID).
		WithTag(facilityUUIDTag, h.facilityUUID)
}

func (h *handlerWithLogs) httpHeaders() any {
	var userAgent, forwardedFor string
	if h.originalRequest != nil {
		userAgent = h.originalRequest.UserAgent()
		forwardedFor = h.originalRequest.Header.Get("X-Forwarded-For")
	}

	return struct {
		UserAgent     string `json:"user_agent,omitempty"`
		XForwardedFor string `json:"x_forwarded_for,omitempty"`
	}{
		UserAgent:     userAgent,
		XForwardedFor: forwardedFor,
	}
}
