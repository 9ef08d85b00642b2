package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/laguz/catalog"
	"github.com/aukilabs/laguz/command"
	lhttp "github.com/aukilabs/laguz/http"
	"github.com/aukilabs/laguz/models"
	"github.com/aukilabs/laguz/spatial"
	"github.com/google/uuid"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

// Creates a testing environement to unit test handlers.
func NewTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	var mutex sync.Mutex
	logger := t.Log

	logs.Encoder = func(v any) ([]byte, error) {
		return json.MarshalIndent(v, "", "  ")
	}

	logs.SetLogger(func(e logs.Entry) {
		mutex.Lock()
		defer mutex.Unlock()

		if logger != nil {
			logger(e)
		}
	})

	errors.Encoder = json.Marshal

	clientA, clientB, close := newTestingEnv(t, newHandler)
	return clientA, clientB, func() {
		mutex.Lock()
		defer mutex.Unlock()
		logger = nil
		close()
	}
}

func newTestingEnv(t *testing.T, newHandler func() Handler) (*websocket.Conn, *websocket.Conn, func()) {
	server := httptest.NewServer(websocket.Server{
		Handshake: func(c *websocket.Config, r *http.Request) error {
			return nil
		},
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			handler := newHandler()
			defer handler.Close()

			Handle(context.Background(), conn, handler)
		},
	})

	newConn := func() *websocket.Conn {
		config, err := websocket.NewConfig(
			strings.ReplaceAll(server.URL, "http://", "ws://"),
			"http://localhost",
		)
		if err != nil {
			t.Fatalf("error initializing web socket: %s", err)
		}

		config.Header.Set("User-Agent", "ted")
		config.Header.Set("X-Forwarded-for", "192.0.0.0")
		config.Header.Set(lhttp.HeaderClientID, uuid.NewString())

		conn, err := websocket.DialConfig(config)
		if err != nil {
			t.Fatalf("error dialing web socket: %s", err)
		}

		return conn
	}

	clientA := newConn()
	clientB := newConn()

	return clientA, clientB, func() {
		clientA.Close()
		clientB.Close()
		server.Close()
	}
}

func testFacilityConfig() models.FacilityConfig {
	return models.FacilityConfig{
		Name: "test facility",
		Bounds: spatial.AABB{
			Min: spatial.Vector3{X: -50, Y: -5, Z: -50},
			Max: spatial.Vector3{X: 50, Y: 20, Z: 50},
		},
		Library:  catalog.Default(),
		Commands: command.DefaultConfig(),
	}
}

// newTestHandler returns a handler factory whose handlers share the same
// facility store.
func newTestHandler(options ...func(*RealtimeHandler)) func() Handler {
	facilities := &models.FacilityStore{ServerID: "ted"}

	return func() Handler {
		rh := &RealtimeHandler{
			ClientIdleTimeout: time.Minute,
			Facilities:        facilities,
			Facility:          testFacilityConfig(),
		}
		for _, o := range options {
			o(rh)
		}

		var h Handler = rh
		h = HandlerWithLogs(h, time.Millisecond*100)
		h = HandlerWithMetrics(h, "https://auki-test.com")
		return h
	}
}
