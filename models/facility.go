package models

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/command"
	"github.com/aukilabs/laguz/spatial"
	"github.com/google/uuid"
)

const (
	EventLayoutChanged = "layout_changed"
	EventFacilityClosed = "facility_closed"
)

// Event is a notification sent to the subscribers of a facility.
type Event struct {
	Type      string   `json:"type"`
	Command   string   `json:"command,omitempty"`
	ObjectIDs []string `json:"objectIds,omitempty"`

	// The subscriber that caused the event. It is not notified.
	Sender string `json:"-"`
}

// Facility represents a facility layout that clients can edit together.
type Facility struct {
	ID           uint32
	FacilityUUID string
	Name         string
	CreatedAt    time.Time

	Index    *spatial.Index
	Commands *command.API

	revision atomic.Uint64

	subscriberIDs   SequentialIDGenerator
	subscriberMutex sync.RWMutex
	subscribers     map[uint32]subscriber

	closeOnce sync.Once
}

type subscriber struct {
	key     string
	handler func(Event)
}

// FacilityConfig configures the layout of a new facility.
type FacilityConfig struct {
	Name     string
	Bounds   spatial.AABB
	Library  catalog.Library
	Commands command.Config

	// Rejects the objects that are not entirely inside the bounds.
	StrictBounds bool
}

func NewFacility(id uint32, conf FacilityConfig) *Facility {
	var opts []spatial.Option
	if conf.StrictBounds {
		opts = append(opts, spatial.WithStrictBounds())
	}
	idx := spatial.NewIndex(conf.Bounds, opts...)

	f := &Facility{
		ID:           id,
		FacilityUUID: uuid.New().String(),
		Name:         conf.Name,
		CreatedAt:    time.Now(),
		Index:        idx,
		Commands:     command.NewAPI(idx, conf.Library, conf.Commands),
		subscribers:  make(map[uint32]subscriber),
	}

	f.Commands.OnChange(func(command.Change) {
		f.revision.Add(1)
	})
	return f
}

// Revision returns a number that changes each time the layout is modified.
func (f *Facility) Revision() uint64 {
	return f.revision.Load()
}

// Subscribe registers a handler called for each event published by a sender
// other than key.
func (f *Facility) Subscribe(key string, h func(Event)) (cancel func()) {
	f.subscriberMutex.Lock()
	defer f.subscriberMutex.Unlock()

	id := f.subscriberIDs.New()
	f.subscribers[id] = subscriber{
		key:     key,
		handler: h,
	}

	return func() {
		f.subscriberMutex.Lock()
		defer f.subscriberMutex.Unlock()

		if _, ok := f.subscribers[id]; !ok {
			return
		}
		delete(f.subscribers, id)
		f.subscriberIDs.Reuse(id)
	}
}

func (f *Facility) SubscriberCount() int {
	f.subscriberMutex.RLock()
	defer f.subscriberMutex.RUnlock()

	return len(f.subscribers)
}

// Publish notifies the subscribers that are not the event sender.
func (f *Facility) Publish(e Event) {
	f.subscriberMutex.RLock()
	defer f.subscriberMutex.RUnlock()

	for _, s := range f.subscribers {
		if e.Sender != "" && s.key == e.Sender {
			continue
		}
		s.handler(e)
	}
}

// Close notifies the subscribers that the facility is gone.
func (f *Facility) Close() {
	f.closeOnce.Do(func() {
		f.Publish(Event{Type: EventFacilityClosed})
	})
}

// FacilityStore holds the facilities served by the current server.
type FacilityStore struct {
	// The id attributed to the current server, used as global id prefix.
	ServerID string

	initOnce   sync.Once
	mutex      sync.RWMutex
	facilities map[string]*Facility
	ids        SequentialIDGenerator
}

func (s *FacilityStore) init() {
	s.facilities = map[string]*Facility{}

	if s.ServerID == "" {
		s.ServerID = "laguz"
	}
}

func (s *FacilityStore) NewID() uint32 {
	return s.ids.New()
}

// ReleaseID makes an id returned by NewID available again. It must only be
// called for ids of facilities that were never added.
func (s *FacilityStore) ReleaseID(id uint32) {
	s.ids.Reuse(id)
}

// Create creates a facility with a new id and adds it to the store.
func (s *FacilityStore) Create(ctx context.Context, conf FacilityConfig) (*Facility, error) {
	f := NewFacility(s.NewID(), conf)
	if err := s.Add(ctx, f); err != nil {
		s.ids.Reuse(f.ID)
		return nil, err
	}
	return f, nil
}

func (s *FacilityStore) Add(ctx context.Context, f *Facility) error {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.facilities[s.GlobalFacilityID(f.ID)] = f

	instrumentIncreaseFacilityGauge()
	instrumentCountFacility()
	return nil
}

// AddIfAbsent adds the facility unless one with the same uuid is already in
// the store. It returns the stored facility and whether it was added.
func (s *FacilityStore) AddIfAbsent(ctx context.Context, f *Facility) (*Facility, bool) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for _, existing := range s.facilities {
		if existing.FacilityUUID == f.FacilityUUID {
			return existing, false
		}
	}

	s.facilities[s.GlobalFacilityID(f.ID)] = f

	instrumentIncreaseFacilityGauge()
	instrumentCountFacility()
	return f, true
}

func (s *FacilityStore) Remove(ctx context.Context, f *Facility) {
	s.initOnce.Do(s.init)
	s.mutex.Lock()
	defer s.mutex.Unlock()

	globalID := s.GlobalFacilityID(f.ID)
	if _, ok := s.facilities[globalID]; !ok {
		return
	}

	delete(s.facilities, globalID)
	f.Close()

	s.ids.Reuse(f.ID)

	instrumentDecreaseFacilityGauge()
}

func (s *FacilityStore) GetByGlobalID(v string) (*Facility, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	f, ok := s.facilities[v]
	return f, ok
}

// GetByUUID returns the facility with the given uuid.
func (s *FacilityStore) GetByUUID(v string) (*Facility, bool) {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	for _, f := range s.facilities {
		if f.FacilityUUID == v {
			return f, true
		}
	}
	return nil, false
}

// List returns the facilities sorted by id.
func (s *FacilityStore) List() []*Facility {
	s.initOnce.Do(s.init)

	s.mutex.RLock()
	defer s.mutex.RUnlock()

	facilities := make([]*Facility, 0, len(s.facilities))
	for _, f := range s.facilities {
		facilities = append(facilities, f)
	}

	sort.Slice(facilities, func(i, j int) bool {
		return facilities[i].ID < facilities[j].ID
	})
	return facilities
}

func (s *FacilityStore) GlobalFacilityID(facilityID uint32) string {
	s.initOnce.Do(s.init)
	return fmt.Sprintf("%sx%x", s.ServerID, facilityID)
}
