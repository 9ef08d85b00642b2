package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/laguz/models"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a laguz realtime handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to join a facility.
	HandleJoin(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to leave the joined facility.
	HandleLeave(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a layout command on the joined facility.
	HandleCommand(ctx context.Context, respond ResponseSender, msg Msg) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Returns the facility store.
	GetFacilities() *models.FacilityStore

	// The currently joined facility.
	CurrentFacility() *models.Facility

	// Get ClientID
	GetClientID() string
}

// Handle handles the given service.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The laguz handler.
	Handler Handler

	sendChan       chan Msg
	receiveChan    chan Msg
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Msg, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	var responder = responseSender{
		send:    h.send,
		sendMsg: h.sendMsg,
	}

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx, responder)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	disconnected := false

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			h.disconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", h.Handler.IdleTimeout()))

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			disconnected = true
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	if !disconnected {
		h.handleDisconnect(ctx.Err())
	}
	wg.Wait()
}

func (h *handler) send(v any) {
	msg, err := MsgFrom(v)
	if err != nil {
		logs.WithTag("message", v).
			WithTag(logs.ClientIDTag, h.Handler.GetClientID()).
			Debug(err.Error())
		return
	}
	h.sendMsg(msg)
}

// sendMsg queues the message without blocking. Messages are dropped when the
// client does not keep up.
func (h *handler) sendMsg(msg Msg) {
	select {
	case h.sendChan <- msg:

	default:
		logs.WithTag(logs.ClientIDTag, h.Handler.GetClientID()).
			Warn(errors.New("send queue is full").
				WithTag("msg_type", msg.Type).
				WithTag("queue_size", sendChanSize))
	}
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case msg := <-h.sendChan:
			if _, err := h.sender(msg); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context, respond ResponseSender) {
	for {
		select {
		case <-ctx.Done():
			return

		default:
			msg, _, err := h.receiver()
			if errors.IsType(err, ErrTypeMalformedMsg) {
				respond.Send(newErrorResponse("", ErrorCodeBadRequest, err))
				continue
			}
			if err != nil {
				h.disconnect(errors.New("receiving message failed").Wrap(err))
				return
			}

			select {
			case h.receiveChan <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	switch {
	case msg.Type == MsgTypePing:
		return h.Handler.HandlePing(ctx, responder, msg)

	case msg.Type == MsgTypeJoin:
		return h.Handler.HandleJoin(ctx, responder, msg)

	case msg.Type == MsgTypeLeave:
		return h.Handler.HandleLeave(ctx, responder, msg)

	case IsCommand(msg.Type):
		return h.Handler.HandleCommand(ctx, responder, msg)

	default:
		responder.Send(newErrorResponse(msg.RequestID, ErrorCodeUnknownMsg,
			errors.New("unknown message type").WithTag("msg_type", msg.Type)))
		return nil
	}
}

// disconnect requests the connection to be closed. Only the first requests are
// kept.
func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send    func(any)
	sendMsg func(Msg)
}

func (r responseSender) Send(v any) {
	r.send(v)
}

func (r responseSender) SendMsg(msg Msg) {
	r.sendMsg(msg)
}

func newErrorResponse(requestID, code string, err error) ErrorResponse {
	res := ErrorResponse{
		Type:      MsgTypeError,
		RequestID: requestID,
		Timestamp: time.Now(),
		Code:      code,
	}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}
