package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/laguz/autoplace"
	"github.com/aukilabs/laguz/command"
	"github.com/aukilabs/laguz/featureflag"
	"github.com/aukilabs/laguz/models"
	"github.com/aukilabs/laguz/spatial"
	"github.com/aukilabs/laguz/store"
	"github.com/chewxy/math32"
	"github.com/segmentio/encoding/json"
)

const (
	// The maximum size of a request body.
	maxBodySize = 1 << 20

	// The event sender of the layout changes made through the REST API.
	restSender = "rest"
)

// LayoutStore is the interface that wraps the persistence of facility layouts.
type LayoutStore interface {
	Save(ctx context.Context, r store.Record) error
	Load(ctx context.Context, facilityUUID string) (store.Record, error)
	List(ctx context.Context) ([]store.Summary, error)
	Delete(ctx context.Context, facilityUUID string) error
}

// API serves the facility layouts as a JSON REST API.
type API struct {
	Facilities *models.FacilityStore

	// The configuration of the created facilities. Name and bounds can be
	// overridden by requests.
	Facility models.FacilityConfig

	// Optional. Save and load endpoints answer 501 when not set.
	Store LayoutStore

	// Optional. Records the facilities saved on demand.
	Autosaver *store.Autosaver

	Searcher     autoplace.Searcher
	FeatureFlags featureflag.FeatureFlag
}

// Register registers the API endpoints on the given mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /facilities", a.handleCreateFacility)
	mux.HandleFunc("GET /facilities", a.handleListFacilities)
	mux.HandleFunc("GET /facilities/{id}", a.withFacility(a.handleGetFacility))
	mux.HandleFunc("DELETE /facilities/{id}", a.withFacility(a.handleDeleteFacility))
	mux.HandleFunc("GET /facilities/{id}/stats", a.withFacility(a.handleStats))
	mux.HandleFunc("POST /facilities/{id}/rebuild", a.withFacility(a.handleRebuild))

	mux.HandleFunc("GET /facilities/{id}/objects", a.withFacility(a.handleListObjects))
	mux.HandleFunc("POST /facilities/{id}/objects", a.withFacility(a.handlePlaceObject))
	mux.HandleFunc("DELETE /facilities/{id}/objects", a.withFacility(a.handleClear))
	mux.HandleFunc("GET /facilities/{id}/objects/{objectID}", a.withFacility(a.handleGetObject))
	mux.HandleFunc("PUT /facilities/{id}/objects/{objectID}", a.withFacility(a.handleMoveObject))
	mux.HandleFunc("DELETE /facilities/{id}/objects/{objectID}", a.withFacility(a.handleRemoveObject))

	mux.HandleFunc("POST /facilities/{id}/walls", a.withFacility(a.handlePlaceWall))
	mux.HandleFunc("POST /facilities/{id}/rooms", a.withFacility(a.handleCreateRoom))
	mux.HandleFunc("POST /facilities/{id}/align", a.withFacility(a.handleAlignObjects))
	mux.HandleFunc("POST /facilities/{id}/validate", a.withFacility(a.handleValidatePlacement))
	mux.HandleFunc("POST /facilities/{id}/find-position", a.withFacility(a.handleFindPosition))
	mux.HandleFunc("POST /facilities/{id}/query", a.withFacility(a.handleQuery))
	mux.HandleFunc("POST /facilities/{id}/raycast", a.withFacility(a.handleRaycast))
	mux.HandleFunc("POST /facilities/{id}/save", a.withFacility(a.handleSave))

	mux.HandleFunc("GET /layouts", a.handleListLayouts)
	mux.HandleFunc("POST /layouts/{uuid}/load", a.handleLoadLayout)
	mux.HandleFunc("DELETE /layouts/{uuid}", a.handleDeleteLayout)
}

// FacilityResponse describes a facility.
type FacilityResponse struct {
	ID          string       `json:"id"`
	UUID        string       `json:"uuid"`
	Name        string       `json:"name"`
	Bounds      spatial.AABB `json:"bounds"`
	ObjectCount int          `json:"objectCount"`
	Subscribers int          `json:"subscribers"`
	Revision    uint64       `json:"revision"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type createFacilityRequest struct {
	Name   string        `json:"name"`
	Bounds *spatial.AABB `json:"bounds,omitempty"`
}

type placeObjectRequest struct {
	Type         string               `json:"type"`
	Position     spatial.Vector3      `json:"position"`
	AutoPosition bool                 `json:"autoPosition"`
	Options      command.PlaceOptions `json:"options"`
}

type moveObjectRequest struct {
	Position spatial.Vector3      `json:"position"`
	Options  command.PlaceOptions `json:"options"`
}

type placeWallRequest struct {
	Start   spatial.Vector3     `json:"start"`
	End     spatial.Vector3     `json:"end"`
	Options command.WallOptions `json:"options"`
}

type createRoomRequest struct {
	Corners []spatial.Vector3   `json:"corners"`
	Options command.RoomOptions `json:"options"`
}

type alignObjectsRequest struct {
	ObjectIDs []string          `json:"objectIds"`
	Alignment command.Alignment `json:"alignment"`
}

type findPositionResponse struct {
	Found    bool             `json:"found"`
	Position *spatial.Vector3 `json:"position"`
	Attempts int              `json:"attempts"`
}

type queryRequest struct {
	Bounds *spatial.AABB    `json:"bounds,omitempty"`
	Point  *spatial.Vector3 `json:"point,omitempty"`
	Center *spatial.Vector3 `json:"center,omitempty"`
	Radius float32          `json:"radius"`
}

type raycastRequest struct {
	Origin      spatial.Vector3 `json:"origin"`
	Direction   spatial.Vector3 `json:"direction"`
	MaxDistance *float32        `json:"maxDistance,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type facilityHandler func(w http.ResponseWriter, r *http.Request, f *models.Facility)

func (a *API) withFacility(h facilityHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, ok := a.Facilities.GetByGlobalID(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, "facility not found")
			return
		}
		h(w, r, f)
	}
}

func (a *API) handleCreateFacility(w http.ResponseWriter, r *http.Request) {
	var req createFacilityRequest
	if !decodeBody(w, r, &req) {
		return
	}

	conf := a.Facility
	if req.Name != "" {
		conf.Name = req.Name
	}
	if req.Bounds != nil {
		if !req.Bounds.IsValid() {
			writeError(w, http.StatusBadRequest, "invalid facility bounds")
			return
		}
		conf.Bounds = *req.Bounds
	}

	f, err := a.Facilities.Create(r.Context(), conf)
	if err != nil {
		logs.Error(err)
		writeError(w, http.StatusInternalServerError, "creating facility failed")
		return
	}

	logs.WithTag("facility_id", a.Facilities.GlobalFacilityID(f.ID)).
		WithTag("name", f.Name).
		Info("facility created")
	writeJSON(w, http.StatusCreated, a.facilityResponse(f))
}

func (a *API) handleListFacilities(w http.ResponseWriter, r *http.Request) {
	facilities := a.Facilities.List()

	res := make([]FacilityResponse, 0, len(facilities))
	for _, f := range facilities {
		res = append(res, a.facilityResponse(f))
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetFacility(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	writeJSON(w, http.StatusOK, a.facilityResponse(f))
}

func (a *API) handleDeleteFacility(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	a.Facilities.Remove(r.Context(), f)

	logs.WithTag("facility_id", r.PathValue("id")).Info("facility deleted")
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	writeJSON(w, http.StatusOK, f.Index.Stats())
}

func (a *API) handleRebuild(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	f.Index.Rebuild()
	writeJSON(w, http.StatusOK, f.Index.Stats())
}

func (a *API) handleListObjects(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	writeJSON(w, http.StatusOK, f.Commands.Objects())
}

func (a *API) handleGetObject(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	obj, ok := f.Commands.Object(r.PathValue("objectID"))
	if !ok {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

func (a *API) handlePlaceObject(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	req := placeObjectRequest{Options: command.DefaultPlaceOptions()}
	if !decodeBody(w, r, &req) {
		return
	}

	var res command.Result
	if req.AutoPosition && !a.FeatureFlags.IsSet(featureflag.FlagDisableAutoPosition) {
		res = a.Searcher.Place(f.Commands, req.Type, req.Position, req.Options)
	} else {
		res = f.Commands.PlaceObject(req.Type, req.Position, req.Options)
	}
	a.writeCommandResult(w, f, "place_object", res)
}

func (a *API) handleMoveObject(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	req := moveObjectRequest{Options: command.DefaultPlaceOptions()}
	if !decodeBody(w, r, &req) {
		return
	}

	res := f.Commands.MoveObject(r.PathValue("objectID"), req.Position, req.Options)
	a.writeCommandResult(w, f, "move_object", res)
}

func (a *API) handleRemoveObject(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	res := f.Commands.RemoveObject(r.PathValue("objectID"))
	a.writeCommandResult(w, f, "remove_object", res)
}

func (a *API) handleClear(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	res := f.Commands.Clear()
	a.writeCommandResult(w, f, "clear", res)
}

func (a *API) handlePlaceWall(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	req := placeWallRequest{Options: command.DefaultWallOptions()}
	if !decodeBody(w, r, &req) {
		return
	}

	res := f.Commands.PlaceWall(req.Start, req.End, req.Options)
	a.writeCommandResult(w, f, "place_wall", res)
}

func (a *API) handleCreateRoom(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	req := createRoomRequest{Options: command.DefaultRoomOptions()}
	if !decodeBody(w, r, &req) {
		return
	}

	res := f.Commands.CreateRoom(req.Corners, req.Options)
	a.writeCommandResult(w, f, "create_room", res)
}

func (a *API) handleAlignObjects(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	var req alignObjectsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res := f.Commands.AlignObjects(req.ObjectIDs, req.Alignment)
	a.writeCommandResult(w, f, "align_objects", res)
}

func (a *API) handleValidatePlacement(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	req := placeObjectRequest{Options: command.DefaultPlaceOptions()}
	if !decodeBody(w, r, &req) {
		return
	}

	res := f.Commands.ValidatePlacement(req.Type, req.Position, req.Options)
	a.writeCommandResult(w, f, "validate_placement", res)
}

func (a *API) handleFindPosition(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	req := placeObjectRequest{Options: command.DefaultPlaceOptions()}
	if !decodeBody(w, r, &req) {
		return
	}

	s := a.Searcher
	s.Validator = f.Commands
	position, attempts := s.FindOptimalPosition(req.Type, req.Position, req.Options)

	writeJSON(w, http.StatusOK, findPositionResponse{
		Found:    position != nil,
		Position: position,
		Attempts: attempts,
	})
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var objects []spatial.Object
	switch {
	case req.Bounds != nil:
		objects = f.Index.QueryBounds(*req.Bounds)

	case req.Point != nil:
		objects = f.Index.QueryPoint(*req.Point)

	case req.Center != nil:
		objects = f.Index.QueryRadius(*req.Center, req.Radius)

	default:
		writeError(w, http.StatusBadRequest, "query requires bounds, point or center")
		return
	}

	if objects == nil {
		objects = []spatial.Object{}
	}
	writeJSON(w, http.StatusOK, objects)
}

func (a *API) handleRaycast(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	var req raycastRequest
	if !decodeBody(w, r, &req) {
		return
	}

	maxDistance := math32.Inf(1)
	if req.MaxDistance != nil {
		maxDistance = *req.MaxDistance
	}

	hits := f.Index.Raycast(spatial.Ray{
		Origin:    req.Origin,
		Direction: req.Direction,
	}, maxDistance)
	if hits == nil {
		hits = []spatial.RayHit{}
	}
	writeJSON(w, http.StatusOK, hits)
}

func (a *API) handleSave(w http.ResponseWriter, r *http.Request, f *models.Facility) {
	if a.Store == nil {
		writeError(w, http.StatusNotImplemented, "layout store is not configured")
		return
	}

	rec := store.RecordOf(f)
	if err := a.Store.Save(r.Context(), rec); err != nil {
		logs.Error(err)
		writeError(w, http.StatusInternalServerError, "saving layout failed")
		return
	}
	if a.Autosaver != nil {
		a.Autosaver.MarkSaved(f)
	}

	writeJSON(w, http.StatusOK, store.Summary{
		FacilityUUID: rec.FacilityUUID,
		Name:         rec.Name,
		ObjectCount:  len(rec.Objects),
		SavedAt:      rec.SavedAt,
	})
}

func (a *API) handleListLayouts(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		writeError(w, http.StatusNotImplemented, "layout store is not configured")
		return
	}

	summaries, err := a.Store.List(r.Context())
	if err != nil {
		logs.Error(err)
		writeError(w, http.StatusInternalServerError, "listing layouts failed")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (a *API) handleLoadLayout(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		writeError(w, http.StatusNotImplemented, "layout store is not configured")
		return
	}

	uuid := r.PathValue("uuid")
	if f, ok := a.Facilities.GetByUUID(uuid); ok {
		writeJSON(w, http.StatusOK, a.facilityResponse(f))
		return
	}

	rec, err := a.Store.Load(r.Context(), uuid)
	if errors.IsType(err, store.ErrTypeNotFound) {
		writeError(w, http.StatusNotFound, "layout not found")
		return
	}
	if err != nil {
		logs.Error(err)
		writeError(w, http.StatusInternalServerError, "loading layout failed")
		return
	}

	f, created, err := a.restore(r.Context(), rec)
	if err != nil {
		logs.Error(err)
		writeError(w, http.StatusInternalServerError, "restoring layout failed")
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, a.facilityResponse(f))
		return
	}

	logs.WithTag("facility_id", a.Facilities.GlobalFacilityID(f.ID)).
		WithTag("facility_uuid", f.FacilityUUID).
		WithTag("objects", len(rec.Objects)).
		Info("layout loaded")
	writeJSON(w, http.StatusCreated, a.facilityResponse(f))
}

func (a *API) handleDeleteLayout(w http.ResponseWriter, r *http.Request) {
	if a.Store == nil {
		writeError(w, http.StatusNotImplemented, "layout store is not configured")
		return
	}

	err := a.Store.Delete(r.Context(), r.PathValue("uuid"))
	if errors.IsType(err, store.ErrTypeNotFound) {
		writeError(w, http.StatusNotFound, "layout not found")
		return
	}
	if err != nil {
		logs.Error(err)
		writeError(w, http.StatusInternalServerError, "deleting layout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// restore creates a facility from a persisted layout. When a facility with
// the same uuid was opened meanwhile, it is returned instead and created is
// false.
func (a *API) restore(ctx context.Context, rec store.Record) (f *models.Facility, created bool, err error) {
	conf := a.Facility
	conf.Name = rec.Name
	conf.Bounds = rec.Bounds

	f = models.NewFacility(a.Facilities.NewID(), conf)
	f.FacilityUUID = rec.FacilityUUID

	if err := f.Commands.Restore(rec.Objects); err != nil {
		a.Facilities.ReleaseID(f.ID)
		return nil, false, errors.New("restoring objects failed").
			WithTag("facility_uuid", rec.FacilityUUID).
			Wrap(err)
	}

	stored, added := a.Facilities.AddIfAbsent(ctx, f)
	if !added {
		a.Facilities.ReleaseID(f.ID)
		return stored, false, nil
	}
	if a.Autosaver != nil {
		a.Autosaver.MarkSaved(f)
	}
	return f, true, nil
}

func (a *API) facilityResponse(f *models.Facility) FacilityResponse {
	return FacilityResponse{
		ID:          a.Facilities.GlobalFacilityID(f.ID),
		UUID:        f.FacilityUUID,
		Name:        f.Name,
		Bounds:      f.Index.Bounds(),
		ObjectCount: f.Index.Len(),
		Subscribers: f.SubscriberCount(),
		Revision:    f.Revision(),
		CreatedAt:   f.CreatedAt,
	}
}

// writeCommandResult writes the result of a command and notifies the facility
// subscribers of the successful mutations. Rejected commands are answered
// with HTTP 422.
func (a *API) writeCommandResult(w http.ResponseWriter, f *models.Facility, cmd string, res command.Result) {
	if !res.Success {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}

	if cmd != "validate_placement" {
		a.FeatureFlags.IfNotSet(featureflag.FlagDisableLayoutBroadcast, func() {
			f.Publish(models.Event{
				Type:      models.EventLayoutChanged,
				Command:   cmd,
				ObjectIDs: res.ObjectIDs,
				Sender:    restSender,
			})
		})
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading request body failed")
		return false
	}
	if len(body) == 0 {
		return true
	}

	if err := json.Unmarshal(body, v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Error(errors.New("encoding response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
