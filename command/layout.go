package command

import (
	"fmt"
	"math"
	"time"

	"github.com/aukilabs/laguz/constraint"
	"github.com/aukilabs/laguz/spatial"
	"github.com/chewxy/math32"
	"github.com/google/uuid"
)

// PlaceWall places a wall standing between start and end. Overlapping
// objects only produce a warning.
func (a *API) PlaceWall(start, end spatial.Vector3, opts WallOptions) Result {
	startTime := time.Now()

	a.mutex.Lock()
	res, err := a.placeWall(start, end, opts, nil)
	a.mutex.Unlock()

	return a.finish("place_wall", startTime, res, err)
}

// placeWall places a wall. Collisions with the objects in ignored are not
// reported.
func (a *API) placeWall(start, end spatial.Vector3, opts WallOptions, ignored map[string]struct{}) (Result, error) {
	opts = opts.withDefaults()

	if !start.IsFinite() || !end.IsFinite() {
		return Result{}, newError(ErrorKindDegenerateGeometry, "Wall coordinates must be finite")
	}

	length := spatial.Distance(start, end)
	if length < MinWallLength {
		return Result{}, newError(ErrorKindDegenerateGeometry, "Wall length must be greater than 0.1 units")
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, exists := a.index.Get(id); exists {
		return Result{}, newError(ErrorKindDuplicateID, fmt.Sprintf("Object %s already exists", id))
	}

	angle := math32.Atan2(end.Z-start.Z, end.X-start.X)
	center := spatial.Mul(spatial.Add(start, end), 0.5)
	center.Y += opts.Height / 2

	box := spatial.Footprint(center, spatial.Vector3{
		X: length,
		Y: opts.Height,
		Z: opts.Thickness,
	}, angle)

	var res Result
	if !opts.AllowOverlap {
		var collisions int
		for _, o := range a.index.CheckCollisions(box, id) {
			if _, ok := ignored[o.ID]; ok || constraint.IsSurface(o) {
				continue
			}
			collisions++
		}

		if collisions > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf("Wall overlaps with %d existing object(s)", collisions))
		}
	}

	wall := spatial.Object{
		ID:          id,
		BoundingBox: box,
		Position:    center,
		UserData: map[string]any{
			DataKeyType:          TypeWall,
			DataKeyPlacementType: "floor",
			DataKeyRotationY:     angle,
			DataKeyMaterial:      opts.Material,
			DataKeyLength:        length,
			DataKeyHeight:        opts.Height,
			DataKeyThickness:     opts.Thickness,
		},
	}
	if err := a.index.Add(wall); err != nil {
		return Result{}, a.indexError("place_wall", id, err)
	}

	res.Success = true
	res.ObjectIDs = []string{id}
	res.Metadata = map[string]any{
		"length":   length,
		"angle":    angle * 180 / float32(math.Pi),
		"material": opts.Material,
	}
	return res, nil
}

// CreateRoom places one wall per pair of consecutive corners, closing the
// loop, and an optional floor covering the corners.
func (a *API) CreateRoom(corners []spatial.Vector3, opts RoomOptions) Result {
	start := time.Now()

	a.mutex.Lock()
	res, err := a.createRoom(corners, opts)
	a.mutex.Unlock()

	return a.finish("create_room", start, res, err)
}

func (a *API) createRoom(corners []spatial.Vector3, opts RoomOptions) (Result, error) {
	if len(corners) < 3 {
		return Result{}, newError(ErrorKindDegenerateGeometry, "Room requires at least 3 corners")
	}

	opts = opts.withDefaults()
	wallOpts := opts.wallOptions()

	var res Result
	walls := make(map[string]struct{}, len(corners))

	for i := range corners {
		start := corners[i]
		end := corners[(i+1)%len(corners)]

		wall, err := a.placeWall(start, end, wallOpts, walls)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("Wall %d: %s", i+1, err))
			continue
		}

		for _, id := range wall.ObjectIDs {
			walls[id] = struct{}{}
		}
		res.ObjectIDs = append(res.ObjectIDs, wall.ObjectIDs...)
		res.Warnings = append(res.Warnings, wall.Warnings...)
	}
	wallCount := len(res.ObjectIDs)

	var floorID string
	if opts.CreateFloor {
		bounds := spatial.NewAABBFromPoints(corners...)
		floor := spatial.Object{
			ID: uuid.NewString(),
			BoundingBox: spatial.AABB{
				Min: spatial.Vector3{X: bounds.Min.X, Y: bounds.Min.Y - opts.FloorThickness, Z: bounds.Min.Z},
				Max: spatial.Vector3{X: bounds.Max.X, Y: bounds.Min.Y, Z: bounds.Max.Z},
			},
			UserData: map[string]any{
				DataKeyType:               TypeFloor,
				DataKeyThickness:          opts.FloorThickness,
				constraint.SurfaceDataKey: true,
			},
		}
		floor.Position = floor.BoundingBox.Center()

		if err := a.index.Add(floor); err != nil {
			res.Errors = append(res.Errors, "Floor: "+a.indexError("create_room", floor.ID, err).Message)
		} else {
			floorID = floor.ID
			res.ObjectIDs = append(res.ObjectIDs, floorID)
		}
	}

	res.Success = len(res.ObjectIDs) != 0
	if !res.Success {
		res.Suggestions = append(res.Suggestions, ErrorKindDegenerateGeometry.Suggestion())
	}
	res.Metadata = map[string]any{
		"wallCount": wallCount,
		"floorId":   floorID,
		"area":      polygonArea(corners),
	}
	return res, nil
}

// AlignObjects lines up the given objects on the reference of the selection
// bounds picked by the alignment.
func (a *API) AlignObjects(ids []string, alignment Alignment) Result {
	start := time.Now()

	a.mutex.Lock()
	res, err := a.alignObjects(ids, alignment)
	a.mutex.Unlock()

	return a.finish("align_objects", start, res, err)
}

func (a *API) alignObjects(ids []string, alignment Alignment) (Result, error) {
	objects := make([]spatial.Object, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		if o, ok := a.index.Get(id); ok {
			objects = append(objects, o)
		}
	}

	if len(objects) < 2 {
		return Result{}, newError(ErrorKindInsufficientSelection, "At least 2 objects required for alignment")
	}

	bounds := objects[0].BoundingBox
	for _, o := range objects[1:] {
		bounds = bounds.Union(o.BoundingBox)
	}

	axis, ref, edge, ok := alignment.reference(bounds)
	if !ok {
		return Result{}, newError(ErrorKindUnknownAlignment, fmt.Sprintf("Unknown alignment type: %s", alignment))
	}

	var res Result
	for _, o := range objects {
		half := o.BoundingBox.Size().Axis(axis) / 2
		target := ref - float32(edge)*half
		offset := spatial.Vector3{}.WithAxis(axis, target-o.BoundingBox.Center().Axis(axis))

		o.BoundingBox = o.BoundingBox.Translate(offset)
		o.Position = spatial.Add(o.Position, offset)

		if err := a.index.Add(o); err != nil {
			return Result{}, a.indexError("align_objects", o.ID, err)
		}
		res.ObjectIDs = append(res.ObjectIDs, o.ID)
	}

	res.Success = true
	res.Metadata = map[string]any{
		"alignment": alignment,
		"axis":      axis.String(),
		"reference": ref,
	}
	return res, nil
}

// polygonArea returns the area of the polygon projected on the XZ plane.
func polygonArea(corners []spatial.Vector3) float32 {
	var sum float32
	for i := range corners {
		p := corners[i]
		q := corners[(i+1)%len(corners)]
		sum += p.X*q.Z - q.X*p.Z
	}
	return math32.Abs(sum) / 2
}
