package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/laguz/autoplace"
	"github.com/aukilabs/laguz/command"
	"github.com/aukilabs/laguz/featureflag"
	lhttp "github.com/aukilabs/laguz/http"
	"github.com/aukilabs/laguz/models"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// RealtimeHandler represents a service that manages a client connection to a
// facility and relays the layout changes made by the other clients in
// realtime.
type RealtimeHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains all the server facilities.
	Facilities *models.FacilityStore

	// The configuration of the facilities created by joining without a
	// facility id.
	Facility models.FacilityConfig

	Searcher     autoplace.Searcher
	FeatureFlags featureflag.FeatureFlag

	conn            *websocket.Conn
	currentFacility *models.Facility
	unsubscribe     func()

	clientID string

	// The key identifying the connection among the facility subscribers.
	subscriberKey string
}

func (h *RealtimeHandler) HandleConnect(conn *websocket.Conn) {
	h.clientID = conn.Request().Header.Get(lhttp.HeaderClientID)
	h.subscriberKey = uuid.NewString()
	if h.clientID == "" {
		h.clientID = h.subscriberKey
	}

	h.conn = conn
}

func (h *RealtimeHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(Response{
		Type:      MsgTypePong,
		RequestID: msg.RequestID,
		Timestamp: time.Now(),
	})
	return nil
}

func (h *RealtimeHandler) HandleJoin(ctx context.Context, respond ResponseSender, msg Msg) error {
	var req JoinRequest
	if err := msg.DataTo(&req); err != nil {
		respond.Send(newErrorResponse(msg.RequestID, ErrorCodeBadRequest, err))
		return nil
	}

	if h.currentFacility != nil && h.Facilities.GlobalFacilityID(h.currentFacility.ID) == req.FacilityID {
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeAlreadyJoined, nil))
		return nil
	}

	facility, ok := h.Facilities.GetByGlobalID(req.FacilityID)
	if !ok && req.FacilityID != "" {
		respond.Send(newErrorResponse(req.RequestID, ErrorCodeNotFound,
			errors.New("facility not found").WithTag("facility_id", req.FacilityID)))
		return nil
	}

	if !ok {
		conf := h.Facility
		if req.Name != "" {
			conf.Name = req.Name
		}

		var err error
		if facility, err = h.Facilities.Create(ctx, conf); err != nil {
			respond.Send(newErrorResponse(req.RequestID, ErrorCodeInternalServerError, nil))
			return nil
		}
	}

	if h.currentFacility != nil {
		h.leaveFacility()
	}

	facilityID := h.Facilities.GlobalFacilityID(facility.ID)
	h.currentFacility = facility
	h.unsubscribe = facility.Subscribe(h.subscriberKey, func(e models.Event) {
		switch e.Type {
		case models.EventLayoutChanged:
			respond.Send(LayoutChanged{
				Type:       MsgTypeLayoutChanged,
				Timestamp:  time.Now(),
				FacilityID: facilityID,
				Command:    e.Command,
				ObjectIDs:  e.ObjectIDs,
			})

		case models.EventFacilityClosed:
			respond.Send(FacilityClosed{
				Type:       MsgTypeFacilityClosed,
				Timestamp:  time.Now(),
				FacilityID: facilityID,
			})
		}
	})

	respond.Send(JoinResponse{
		Type:         MsgTypeJoinResponse,
		RequestID:    req.RequestID,
		Timestamp:    time.Now(),
		FacilityID:   facilityID,
		FacilityUUID: facility.FacilityUUID,
		Name:         facility.Name,
		Bounds:       facility.Index.Bounds(),
		Objects:      facility.Commands.Objects(),
	})
	return nil
}

func (h *RealtimeHandler) HandleLeave(ctx context.Context, respond ResponseSender, msg Msg) error {
	if h.currentFacility == nil {
		respond.Send(newErrorResponse(msg.RequestID, ErrorCodeNotJoined, nil))
		return nil
	}

	h.leaveFacility()
	respond.Send(Response{
		Type:      MsgTypeLeaveResponse,
		RequestID: msg.RequestID,
		Timestamp: time.Now(),
	})
	return nil
}

func (h *RealtimeHandler) HandleCommand(ctx context.Context, respond ResponseSender, msg Msg) error {
	facility := h.currentFacility
	if facility == nil {
		respond.Send(newErrorResponse(msg.RequestID, ErrorCodeNotJoined,
			errors.New("facility not joined").
				WithType(ErrTypeFacilityNotJoined).
				WithTag("msg_type", msg.Type)))
		return nil
	}

	res, err := h.execute(facility, msg)
	if err != nil {
		respond.Send(newErrorResponse(msg.RequestID, ErrorCodeBadRequest, err))
		return nil
	}

	respond.Send(CommandResponse{
		Type:      MsgTypeCommandResponse,
		RequestID: msg.RequestID,
		Timestamp: time.Now(),
		Command:   msg.Type,
		Result:    res,
	})

	if res.Success && msg.Type != MsgTypeValidatePlacement {
		h.FeatureFlags.IfNotSet(featureflag.FlagDisableLayoutBroadcast, func() {
			facility.Publish(models.Event{
				Type:      models.EventLayoutChanged,
				Command:   msg.Type,
				ObjectIDs: res.ObjectIDs,
				Sender:    h.subscriberKey,
			})
		})
	}
	return nil
}

func (h *RealtimeHandler) execute(f *models.Facility, msg Msg) (command.Result, error) {
	switch msg.Type {
	case MsgTypePlaceObject:
		req := PlaceObjectRequest{Options: command.DefaultPlaceOptions()}
		if err := msg.DataTo(&req); err != nil {
			return command.Result{}, err
		}

		if req.AutoPosition && !h.FeatureFlags.IsSet(featureflag.FlagDisableAutoPosition) {
			return h.Searcher.Place(f.Commands, req.ObjectType, req.Position, req.Options), nil
		}
		return f.Commands.PlaceObject(req.ObjectType, req.Position, req.Options), nil

	case MsgTypeValidatePlacement:
		req := PlaceObjectRequest{Options: command.DefaultPlaceOptions()}
		if err := msg.DataTo(&req); err != nil {
			return command.Result{}, err
		}
		return f.Commands.ValidatePlacement(req.ObjectType, req.Position, req.Options), nil

	case MsgTypePlaceWall:
		req := PlaceWallRequest{Options: command.DefaultWallOptions()}
		if err := msg.DataTo(&req); err != nil {
			return command.Result{}, err
		}
		return f.Commands.PlaceWall(req.Start, req.End, req.Options), nil

	case MsgTypeCreateRoom:
		req := CreateRoomRequest{Options: command.DefaultRoomOptions()}
		if err := msg.DataTo(&req); err != nil {
			return command.Result{}, err
		}
		return f.Commands.CreateRoom(req.Corners, req.Options), nil

	case MsgTypeAlignObjects:
		var req AlignObjectsRequest
		if err := msg.DataTo(&req); err != nil {
			return command.Result{}, err
		}
		return f.Commands.AlignObjects(req.ObjectIDs, req.Alignment), nil

	case MsgTypeMoveObject:
		req := MoveObjectRequest{Options: command.DefaultPlaceOptions()}
		if err := msg.DataTo(&req); err != nil {
			return command.Result{}, err
		}
		return f.Commands.MoveObject(req.ObjectID, req.Position, req.Options), nil

	case MsgTypeRemoveObject:
		var req RemoveObjectRequest
		if err := msg.DataTo(&req); err != nil {
			return command.Result{}, err
		}
		return f.Commands.RemoveObject(req.ObjectID), nil

	case MsgTypeClear:
		return f.Commands.Clear(), nil

	default:
		return command.Result{}, errors.New("unknown command").WithTag("msg_type", msg.Type)
	}
}

func (h *RealtimeHandler) HandleDisconnect(_ error) {
	if h.currentFacility != nil {
		h.leaveFacility()
	}
}

func (h *RealtimeHandler) Receiver() Receiver {
	return NewReceiver(h.conn)
}

func (h *RealtimeHandler) Sender() Sender {
	return NewSender(h.conn)
}

func (h *RealtimeHandler) Close() {
}

func (h *RealtimeHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *RealtimeHandler) GetFacilities() *models.FacilityStore {
	return h.Facilities
}

func (h *RealtimeHandler) CurrentFacility() *models.Facility {
	return h.currentFacility
}

func (h *RealtimeHandler) GetClientID() string {
	return h.clientID
}

func (h *RealtimeHandler) leaveFacility() {
	if h.unsubscribe != nil {
		h.unsubscribe()
		h.unsubscribe = nil
	}
	h.currentFacility = nil
}
