package command

import (
	"fmt"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/constraint"
	"github.com/aukilabs/laguz/spatial"
	"github.com/google/uuid"
)

const (
	TypeWall  = "wall"
	TypeFloor = "floor"

	DataKeyType          = "type"
	DataKeyPlacementType = "placementType"
	DataKeyRotationY     = "rotationY"
	DataKeyScaleX        = "scaleX"
	DataKeyScaleY        = "scaleY"
	DataKeyScaleZ        = "scaleZ"
	DataKeyMaterial      = "material"
	DataKeyLength        = "length"
	DataKeyHeight        = "height"
	DataKeyThickness     = "thickness"
)

// Change describes a committed mutation of the layout.
type Change struct {
	Command   string
	ObjectIDs []string
}

// API is the command layer in front of a spatial index. Mutating commands are
// serialized so that solving a placement and committing it is atomic.
type API struct {
	mutex    sync.Mutex
	index    *spatial.Index
	library  catalog.Library
	solver   constraint.Solver
	config   Config
	onChange func(Change)
}

// NewAPI creates an API that places objects described by the given library
// into the given index.
func NewAPI(idx *spatial.Index, library catalog.Library, conf Config) *API {
	conf = conf.withDefaults()

	return &API{
		index:   idx,
		library: library,
		solver:  constraint.Solver{MaxIterations: conf.MaxSolverIterations},
		config:  conf,
	}
}

// Index returns the underlying spatial index.
func (a *API) Index() *spatial.Index {
	return a.index
}

func (a *API) Config() Config {
	return a.config
}

// OnChange sets the function called after each successful mutation.
func (a *API) OnChange(f func(Change)) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.onChange = f
}

// PlaceObject places an object of the given type at the given position.
func (a *API) PlaceObject(objectType string, position spatial.Vector3, opts PlaceOptions) Result {
	start := time.Now()

	a.mutex.Lock()
	res, err := a.placeObject(objectType, position, opts)
	a.mutex.Unlock()

	return a.finish("place_object", start, res, err)
}

func (a *API) placeObject(objectType string, position spatial.Vector3, opts PlaceOptions) (Result, error) {
	def, err := a.definition(objectType, opts)
	if err != nil {
		return Result{}, err
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, exists := a.index.Get(id); exists {
		return Result{}, newError(ErrorKindDuplicateID, fmt.Sprintf("Object %s already exists", id))
	}

	transform := constraint.Transform{
		Position: a.snap(position, opts.SnapToGrid),
		Rotation: opts.rotation(),
		Scale:    opts.scale(),
	}

	var res Result
	if opts.ConstraintsEnforced() {
		sol := a.solver.Solve(transform, a.placementContext(transform, def, opts, ""))
		if !sol.Result.Valid {
			return Result{}, &Error{
				Kind:        ErrorKindConstraintViolation,
				Message:     "Placement violates constraints",
				Issues:      sol.Result.Issues,
				Suggestions: sol.Result.Suggestions,
			}
		}

		if sol.Iterations > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Position adjusted after %d iterations", sol.Iterations))
		}
		res.Suggestions = sol.Result.Suggestions
		transform = sol.Transform
	}

	obj := newObject(id, def, transform, opts.UserData)
	if err := a.index.Add(obj); err != nil {
		return Result{}, a.indexError("place_object", id, err)
	}

	res.Success = true
	res.ObjectIDs = []string{id}
	res.Metadata = map[string]any{
		"type":     def.Type,
		"position": transform.Position,
	}
	return res, nil
}

// ValidatePlacement validates the placement of an object without modifying
// the layout.
func (a *API) ValidatePlacement(objectType string, position spatial.Vector3, opts PlaceOptions) Result {
	start := time.Now()
	res, err := a.validatePlacement(objectType, position, opts)
	return a.finish("validate_placement", start, res, err)
}

func (a *API) validatePlacement(objectType string, position spatial.Vector3, opts PlaceOptions) (Result, error) {
	def, err := a.definition(objectType, opts)
	if err != nil {
		return Result{}, err
	}

	transform := constraint.Transform{
		Position: a.snap(position, opts.SnapToGrid),
		Rotation: opts.rotation(),
		Scale:    opts.scale(),
	}

	validation := a.solver.Validate(transform, a.placementContext(transform, def, opts, opts.ID))
	return Result{
		Success:     validation.Valid,
		Errors:      validation.Issues,
		Suggestions: validation.Suggestions,
		Metadata: map[string]any{
			"score":    validation.Score,
			"isValid":  validation.Valid,
			"position": transform.Position,
		},
	}, nil
}

// MoveObject moves an existing object to the given position. Objects whose
// type is in the catalog go through the solver, ignoring their current
// footprint.
func (a *API) MoveObject(id string, position spatial.Vector3, opts PlaceOptions) Result {
	start := time.Now()

	a.mutex.Lock()
	res, err := a.moveObject(id, position, opts)
	a.mutex.Unlock()

	return a.finish("move_object", start, res, err)
}

func (a *API) moveObject(id string, position spatial.Vector3, opts PlaceOptions) (Result, error) {
	current, ok := a.index.Get(id)
	if !ok {
		return Result{}, newError(ErrorKindObjectNotFound, "Object not found: "+id)
	}

	position = a.snap(position, opts.SnapToGrid)

	userData := current.UserData
	for k, v := range opts.UserData {
		if userData == nil {
			userData = make(map[string]any, len(opts.UserData))
		}
		userData[k] = v
	}

	def, err := a.definition(current.StringData(DataKeyType), opts)
	if err != nil {
		// Walls, floors and unknown types keep their footprint.
		offset := spatial.Sub(position, current.Position)
		moved := current
		moved.Position = position
		moved.BoundingBox = current.BoundingBox.Translate(offset)
		moved.UserData = userData

		if err := a.index.Add(moved); err != nil {
			return Result{}, a.indexError("move_object", id, err)
		}
		return Result{
			Success:   true,
			ObjectIDs: []string{id},
			Metadata:  map[string]any{"position": position},
		}, nil
	}

	rotation := spatial.Vector3{Y: floatData(current, DataKeyRotationY)}
	if opts.Rotation != nil {
		rotation = *opts.Rotation
	}

	scale := scaleData(current)
	if opts.Scale != nil {
		scale = *opts.Scale
	}

	transform := constraint.Transform{
		Position: position,
		Rotation: rotation,
		Scale:    scale,
	}

	var res Result
	if opts.ConstraintsEnforced() {
		sol := a.solver.Solve(transform, a.placementContext(transform, def, opts, id))
		if !sol.Result.Valid {
			return Result{}, &Error{
				Kind:        ErrorKindConstraintViolation,
				Message:     "Placement violates constraints",
				Issues:      sol.Result.Issues,
				Suggestions: sol.Result.Suggestions,
			}
		}

		if sol.Iterations > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Position adjusted after %d iterations", sol.Iterations))
		}
		res.Suggestions = sol.Result.Suggestions
		transform = sol.Transform
	}

	if err := a.index.Add(newObject(id, def, transform, userData)); err != nil {
		return Result{}, a.indexError("move_object", id, err)
	}

	res.Success = true
	res.ObjectIDs = []string{id}
	res.Metadata = map[string]any{"position": transform.Position}
	return res, nil
}

// RemoveObject removes the object with the given id.
func (a *API) RemoveObject(id string) Result {
	start := time.Now()

	a.mutex.Lock()
	var err error
	if !a.index.Remove(id) {
		err = newError(ErrorKindObjectNotFound, "Object not found: "+id)
	}
	a.mutex.Unlock()

	return a.finish("remove_object", start, Result{
		Success:   true,
		ObjectIDs: []string{id},
	}, err)
}

// Clear removes all the objects.
func (a *API) Clear() Result {
	start := time.Now()

	a.mutex.Lock()
	count := a.index.Len()
	a.index.Clear()
	a.mutex.Unlock()

	return a.finish("clear", start, Result{
		Success:  true,
		Metadata: map[string]any{"removed": count},
	}, nil)
}

// Object returns the object with the given id.
func (a *API) Object(id string) (spatial.Object, bool) {
	return a.index.Get(id)
}

// Objects returns all the objects sorted by id.
func (a *API) Objects() []spatial.Object {
	return a.index.Objects()
}

// Restore replaces the layout with the given objects. Objects are committed as
// is, without going through the solver.
func (a *API) Restore(objects []spatial.Object) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	a.index.Clear()
	for _, o := range objects {
		if err := a.index.Add(o); err != nil {
			return err
		}
	}
	return nil
}

func (a *API) definition(objectType string, opts PlaceOptions) (catalog.Definition, error) {
	def, ok := a.library.Get(objectType)
	if !ok {
		return catalog.Definition{}, newError(ErrorKindUnknownType, "Unknown object type: "+objectType)
	}

	if opts.Clearances != nil {
		def.Clearances = *opts.Clearances
	}
	return def, nil
}

func (a *API) placementContext(t constraint.Transform, def catalog.Definition, opts PlaceOptions, excludeID string) constraint.Context {
	ctx := constraint.Context{
		Index:            a.index,
		Target:           def,
		GridSize:         a.config.GridSize,
		SnapTolerance:    a.config.SnapTolerance,
		PreferredSurface: opts.PreferredSurface,
		ExcludeID:        excludeID,
		AllowOverlap:     opts.AllowOverlap,
		SearchMargin:     a.config.NearbyMargin,
	}

	ctx.Nearby = a.index.QueryRadius(t.Position, constraint.SearchRadius(t, ctx))
	return ctx
}

func (a *API) snap(p spatial.Vector3, snapToGrid bool) spatial.Vector3 {
	if !snapToGrid {
		return p
	}

	p.X = spatial.Snap(p.X, a.config.GridSize)
	p.Z = spatial.Snap(p.Z, a.config.GridSize)
	return p
}

func (a *API) indexError(command, id string, err error) *Error {
	logs.WithTag("command", command).
		WithTag("object_id", id).
		Warn(err)

	return indexError(err)
}

// finish composes the outcome of a command, records it and notifies the
// change observer.
func (a *API) finish(command string, start time.Time, res Result, err error) Result {
	if err != nil {
		cerr, ok := err.(*Error)
		if !ok {
			cerr = newError(ErrorKindConstraintViolation, err.Error())
		}
		res = cerr.Result()

		logs.WithTag("command", command).
			WithTag("error_kind", cerr.Kind).
			WithTag("errors", res.Errors).
			Debug("command rejected")
	}

	instrumentCommand(command, res.Success, time.Since(start))

	if res.Success && isMutation(command) {
		a.mutex.Lock()
		onChange := a.onChange
		a.mutex.Unlock()

		if onChange != nil {
			onChange(Change{
				Command:   command,
				ObjectIDs: res.ObjectIDs,
			})
		}
	}

	if res.ObjectIDs == nil {
		res.ObjectIDs = []string{}
	}
	if res.Warnings == nil {
		res.Warnings = []string{}
	}
	if res.Errors == nil {
		res.Errors = []string{}
	}
	if res.Suggestions == nil {
		res.Suggestions = []string{}
	}
	return res
}

func isMutation(command string) bool {
	switch command {
	case "validate_placement":
		return false
	default:
		return true
	}
}

func newObject(id string, def catalog.Definition, t constraint.Transform, userData map[string]any) spatial.Object {
	data := make(map[string]any, len(userData)+6)
	for k, v := range userData {
		data[k] = v
	}
	data[DataKeyType] = def.Type
	data[DataKeyPlacementType] = string(def.PlacementType)
	data[DataKeyRotationY] = t.Rotation.Y

	scale := t.EffectiveScale()
	data[DataKeyScaleX] = scale.X
	data[DataKeyScaleY] = scale.Y
	data[DataKeyScaleZ] = scale.Z

	return spatial.Object{
		ID:          id,
		BoundingBox: constraint.Footprint(t, def.Dimensions),
		Position:    t.Position,
		UserData:    data,
	}
}

// floatData returns the numeric user data value for the given key. Values
// decoded from JSON are float64.
func floatData(o spatial.Object, key string) float32 {
	switch v := o.UserData[key].(type) {
	case float32:
		return v
	case float64:
		return float32(v)
	case int:
		return float32(v)
	default:
		return 0
	}
}

// scaleData returns the scale the object was placed with. Objects placed
// before the scale was recorded get a unit scale.
func scaleData(o spatial.Object) spatial.Vector3 {
	return spatial.Vector3{
		X: floatData(o, DataKeyScaleX),
		Y: floatData(o, DataKeyScaleY),
		Z: floatData(o, DataKeyScaleZ),
	}
}
