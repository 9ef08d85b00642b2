package store

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/laguz/models"
)

// Saver is the interface that wraps the persistence of a layout.
type Saver interface {
	Save(ctx context.Context, r Record) error
}

// RecordOf returns the current layout of the given facility.
func RecordOf(f *models.Facility) Record {
	return Record{
		FacilityUUID: f.FacilityUUID,
		Name:         f.Name,
		Bounds:       f.Index.Bounds(),
		Objects:      f.Commands.Objects(),
		SavedAt:      time.Now(),
	}
}

// Autosaver periodically saves the facilities modified since their last save.
type Autosaver struct {
	Saver      Saver
	Facilities *models.FacilityStore
	Interval   time.Duration

	mutex sync.Mutex
	saved map[string]uint64
}

// Run saves the modified facilities at each interval until the context is
// canceled. A last save is performed before returning.
func (a *Autosaver) Run(ctx context.Context) {
	ticker := time.NewTicker(a.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.SaveModified(context.Background())
			return

		case <-ticker.C:
			a.SaveModified(ctx)
		}
	}
}

// SaveModified saves the facilities whose revision changed and returns the
// number of saved facilities.
func (a *Autosaver) SaveModified(ctx context.Context) int {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.saved == nil {
		a.saved = make(map[string]uint64)
	}

	count := 0
	for _, f := range a.Facilities.List() {
		revision := f.Revision()
		last, known := a.saved[f.FacilityUUID]
		if known && last == revision {
			continue
		}
		if !known && revision == 0 {
			continue
		}

		if err := a.Saver.Save(ctx, RecordOf(f)); err != nil {
			logs.WithTag("facility_uuid", f.FacilityUUID).Warn(err)
			continue
		}

		a.saved[f.FacilityUUID] = revision
		count++
	}

	if count != 0 {
		logs.WithTag("count", count).Debug("facilities autosaved")
	}
	return count
}

// MarkSaved records the facility as saved at its current revision.
func (a *Autosaver) MarkSaved(f *models.Facility) {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.saved == nil {
		a.saved = make(map[string]uint64)
	}
	a.saved[f.FacilityUUID] = f.Revision()
}
