package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel  = "error_type"
	msgTypeLabel  = "msg_type"
	serverIDLabel = "server_id"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{serverIDLabel})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{
		serverIDLabel,
		msgTypeLabel,
	})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{
		serverIDLabel,
		msgTypeLabel,
	})

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket message.",
	}, []string{
		serverIDLabel,
		errTypeLabel,
	})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{
		serverIDLabel,
		msgTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{
		serverIDLabel,
		msgTypeLabel,
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{
		serverIDLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{
		serverIDLabel,
		msgTypeLabel,
	})
)

func HandlerWithMetrics(h Handler, serverID string) Handler {
	return &handlerWithMetrics{
		Handler:  h,
		serverID: serverID,
	}
}

type handlerWithMetrics struct {
	Handler

	serverID string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedClients.WithLabelValues(h.serverID).Inc()
	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.WithLabelValues(h.serverID).Dec()
	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	defer h.measureLatency(msg, time.Now())
	return h.Handler.HandlePing(ctx, respond, msg)
}

func (h *handlerWithMetrics) HandleJoin(ctx context.Context, respond ResponseSender, msg Msg) error {
	defer h.measureLatency(msg, time.Now())
	return h.Handler.HandleJoin(ctx, respond, msg)
}

func (h *handlerWithMetrics) HandleLeave(ctx context.Context, respond ResponseSender, msg Msg) error {
	defer h.measureLatency(msg, time.Now())
	return h.Handler.HandleLeave(ctx, respond, msg)
}

func (h *handlerWithMetrics) HandleCommand(ctx context.Context, respond ResponseSender, msg Msg) error {
	defer h.measureLatency(msg, time.Now())
	return h.Handler.HandleCommand(ctx, respond, msg)
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		labels := h.msgLabels(msg)

		if err != nil {
			wsReceiveError.With(prometheus.Labels{
				serverIDLabel: h.serverID,
				errTypeLabel:  errors.Type(err),
			}).Inc()
		} else {
			wsReceivedMsgs.With(labels).Inc()
		}
		if n != 0 {
			wsReceivedBytes.With(labels).Add(float64(n))
		}
		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	send := h.Handler.Sender()

	return func(msg Msg) (int, error) {
		n, err := send(msg)
		labels := h.msgLabels(msg)

		if err != nil {
			wsSendError.With(prometheus.Labels{
				serverIDLabel: h.serverID,
				msgTypeLabel:  labels[msgTypeLabel],
				errTypeLabel:  errors.Type(err),
			}).Inc()
		}
		if n != 0 {
			wsSentMsgs.With(labels).Inc()
			wsSentBytes.With(labels).Add(float64(n))
		}
		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(msg Msg, start time.Time) {
	wsMsgLatency.With(h.msgLabels(msg)).Observe(time.Since(start).Seconds())
}

func (h *handlerWithMetrics) msgLabels(msg Msg) prometheus.Labels {
	return prometheus.Labels{
		serverIDLabel: h.serverID,
		msgTypeLabel:  metricMsgType(msg.Type),
	}
}

// metricMsgType bounds the message type label values to the known types.
func metricMsgType(msgType string) string {
	switch msgType {
	case MsgTypePing,
		MsgTypePong,
		MsgTypeJoin,
		MsgTypeJoinResponse,
		MsgTypeLeave,
		MsgTypeLeaveResponse,
		MsgTypeCommandResponse,
		MsgTypeLayoutChanged,
		MsgTypeFacilityClosed,
		MsgTypeError:
		return msgType
	}

	if IsCommand(msgType) {
		return msgType
	}
	return "unknown"
}
