package http

import (
	"context"
	"strings"
	"sync"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/eventbus"
	"firestore-access/internal/shared/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// DefaultFeedBuffer is how many records a slow watcher may lag behind
	// before records are dropped for it.
	DefaultFeedBuffer = 64

	feedPingInterval = 30 * time.Second
	feedWriteTimeout = 10 * time.Second
)

// Feed pushes mutation records to websocket watchers as they are
// published on the event bus. A watcher sees the records whose path lies
// under the collection path it asked for.
type Feed struct {
	mu       sync.RWMutex
	watchers map[string]*watcher
	buffer   int
	log      logger.Logger
}

type watcher struct {
	prefix string
	ch     chan model.AuditRecord
}

// NewFeed creates a Feed.
func NewFeed(log logger.Logger) *Feed {
	return &Feed{
		watchers: map[string]*watcher{},
		buffer:   DefaultFeedBuffer,
		log:      log.WithComponent("mutation-feed"),
	}
}

// Subscribe registers the feed for every mutation event on bus.
func (f *Feed) Subscribe(bus *eventbus.EventBus) {
	for _, eventType := range eventbus.MutationEventTypes {
		bus.Subscribe(eventType, f.Handle)
	}
}

// Handle is an eventbus.Handler. It never blocks on a watcher.
func (f *Feed) Handle(ctx context.Context, event eventbus.Event) error {
	rec, ok := event.Data().(model.AuditRecord)
	if !ok {
		return errors.NewInternalError("unexpected feed event payload").WithDetail("event_type", event.Type())
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id, w := range f.watchers {
		if !w.matches(rec.Path) {
			continue
		}
		select {
		case w.ch <- rec:
		default:
			f.log.WithContext(ctx).Warnf("watcher %s is lagging, dropped %s of %s", id, rec.Operation, rec.Path)
		}
	}
	return nil
}

// matches reports whether path lies under the watched collection. An
// empty prefix watches everything.
func (w *watcher) matches(path string) bool {
	return w.prefix == "" || strings.HasPrefix(path, w.prefix+"/")
}

func (f *Feed) watch(collectionPath string) (string, <-chan model.AuditRecord) {
	id := uuid.NewString()
	w := &watcher{prefix: strings.Trim(collectionPath, "/"), ch: make(chan model.AuditRecord, f.buffer)}
	f.mu.Lock()
	f.watchers[id] = w
	f.mu.Unlock()
	return id, w.ch
}

func (f *Feed) unwatch(id string) {
	f.mu.Lock()
	delete(f.watchers, id)
	f.mu.Unlock()
}

// Watchers returns the number of connected watchers.
func (f *Feed) Watchers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.watchers)
}

// RegisterRoutes mounts GET /ws/watch?collection=<path>.
func (f *Feed) RegisterRoutes(router fiber.Router) {
	ws := router.Group("/ws")
	ws.Use("/watch", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	ws.Get("/watch", websocket.New(f.serve))
}

func (f *Feed) serve(conn *websocket.Conn) {
	id, records := f.watch(conn.Query("collection"))
	defer f.unwatch(id)
	log := f.log.WithFields(map[string]interface{}{"watcher": id})
	log.Infof("watcher connected for %q", conn.Query("collection"))

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warnf("watcher read failed: %v", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(feedPingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Info("watcher disconnected")
			return
		case rec := <-records:
			_ = conn.SetWriteDeadline(time.Now().Add(feedWriteTimeout))
			if err := conn.WriteJSON(newAuditRecordResponse("", rec)); err != nil {
				log.Warnf("failed to push %s of %s: %v", rec.Operation, rec.Path, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(feedWriteTimeout)); err != nil {
				return
			}
		}
	}
}
