// Package redis keeps an append-only audit log of document mutations in
// Redis Streams, one stream per collection path.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"firestore-access/internal/access/domain/model"
	"firestore-access/internal/access/domain/repository"
	"firestore-access/internal/shared/errors"
	"firestore-access/internal/shared/eventbus"
	"firestore-access/internal/shared/firestore"
	"firestore-access/internal/shared/logger"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix starts every audit stream key.
const DefaultPrefix = "audit"

const (
	fieldOperation       = "operation"
	fieldKey             = "key"
	fieldPath            = "path"
	fieldParams          = "params"
	fieldAccountName     = "account_name"
	fieldAccountID       = "account_id"
	fieldServerTimestamp = "server_timestamp"
	fieldDeviceTimestamp = "device_timestamp"
)

// Entry is one audit record read back from a stream.
type Entry struct {
	// ID is the stream entry id, usable as the after argument of Events.
	ID     string
	Record model.AuditRecord
}

// AuditStream implements repository.AuditSink on Redis Streams.
type AuditStream struct {
	client redis.UniversalClient
	prefix string
	maxLen int64
	log    logger.Logger
}

// Option configures an AuditStream.
type Option func(*AuditStream)

// WithPrefix overrides DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(a *AuditStream) { a.prefix = prefix }
}

// WithMaxLen caps each stream approximately at n entries. 0 keeps all.
func WithMaxLen(n int64) Option {
	return func(a *AuditStream) { a.maxLen = n }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(a *AuditStream) { a.log = l }
}

// NewAuditStream creates an AuditStream writing through client.
func NewAuditStream(client redis.UniversalClient, opts ...Option) *AuditStream {
	a := &AuditStream{
		client: client,
		prefix: DefaultPrefix,
		log:    logger.NoopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.WithComponent("audit-stream")
	return a
}

var _ repository.AuditSink = (*AuditStream)(nil)

// StreamKey names the stream holding the records of one collection.
func (a *AuditStream) StreamKey(collectionPath string) string {
	return a.prefix + ":" + collectionPath
}

// Append adds rec to the stream of the collection holding its document.
func (a *AuditStream) Append(ctx context.Context, rec model.AuditRecord) error {
	values, err := recordValues(rec)
	if err != nil {
		return err
	}
	stream := a.StreamKey(firestore.ParentPath(rec.Path))
	args := &redis.XAddArgs{Stream: stream, Values: values}
	if a.maxLen > 0 {
		args.MaxLen = a.maxLen
		args.Approx = true
	}
	id, err := a.client.XAdd(ctx, args).Result()
	if err != nil {
		a.log.WithContext(ctx).Errorf("failed to append %s of %s to %s: %v", rec.Operation, rec.Path, stream, err)
		return fmt.Errorf("xadd %s: %w", stream, err)
	}
	a.log.WithContext(ctx).Debugf("appended %s of %s as %s", rec.Operation, rec.Path, id)
	return nil
}

// Events reads up to count records of a collection after the entry id
// after ("" reads from the start).
func (a *AuditStream) Events(ctx context.Context, collectionPath, after string, count int64) ([]Entry, error) {
	start := "-"
	if after != "" {
		start = "(" + after
	}
	stream := a.StreamKey(collectionPath)
	var (
		msgs []redis.XMessage
		err  error
	)
	if count > 0 {
		msgs, err = a.client.XRangeN(ctx, stream, start, "+", count).Result()
	} else {
		msgs, err = a.client.XRange(ctx, stream, start, "+").Result()
	}
	if err != nil {
		a.log.WithContext(ctx).Errorf("failed to read %s: %v", stream, err)
		return nil, fmt.Errorf("xrange %s: %w", stream, err)
	}

	entries := make([]Entry, 0, len(msgs))
	for _, msg := range msgs {
		rec, err := parseRecord(msg.Values)
		if err != nil {
			a.log.WithContext(ctx).Warnf("skipping malformed audit entry %s: %v", msg.ID, err)
			continue
		}
		entries = append(entries, Entry{ID: msg.ID, Record: rec})
	}
	return entries, nil
}

// Subscribe appends every mutation event published on bus.
func (a *AuditStream) Subscribe(bus *eventbus.EventBus) {
	for _, eventType := range eventbus.MutationEventTypes {
		bus.Subscribe(eventType, a.Handle)
	}
}

// Handle is an eventbus.Handler for mutation events.
func (a *AuditStream) Handle(ctx context.Context, event eventbus.Event) error {
	rec, ok := event.Data().(model.AuditRecord)
	if !ok {
		return errors.NewInternalError("unexpected audit event payload").
			WithDetail("event_type", event.Type()).
			WithDetail("payload_type", fmt.Sprintf("%T", event.Data()))
	}
	return a.Append(ctx, rec)
}

func recordValues(rec model.AuditRecord) (map[string]interface{}, error) {
	params, err := json.Marshal(rec.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params of %s: %w", rec.Path, err)
	}
	values := map[string]interface{}{
		fieldOperation:       string(rec.Operation),
		fieldKey:             rec.Key,
		fieldPath:            rec.Path,
		fieldParams:          string(params),
		fieldAccountName:     rec.Event.AccountName,
		fieldAccountID:       rec.Event.AccountID,
		fieldServerTimestamp: rec.Event.ServerTimestamp.UTC().Format(time.RFC3339Nano),
	}
	if rec.Event.DeviceTimestamp != nil {
		values[fieldDeviceTimestamp] = rec.Event.DeviceTimestamp.UTC().Format(time.RFC3339Nano)
	}
	return values, nil
}

func parseRecord(values map[string]interface{}) (model.AuditRecord, error) {
	str := func(name string) string {
		s, _ := values[name].(string)
		return s
	}
	var rec model.AuditRecord
	rec.Operation = model.Operation(str(fieldOperation))
	rec.Key = str(fieldKey)
	rec.Path = str(fieldPath)
	if rec.Operation == "" || rec.Path == "" {
		return rec, fmt.Errorf("missing %s or %s", fieldOperation, fieldPath)
	}
	if raw := str(fieldParams); raw != "" {
		if err := json.NewDecoder(strings.NewReader(raw)).Decode(&rec.Params); err != nil {
			return rec, fmt.Errorf("decode params: %w", err)
		}
	}

	parser := model.NewTimestampParser()
	server, err := parser.ParseTimestamp(str(fieldServerTimestamp))
	if err != nil {
		return rec, err
	}
	rec.Event = model.AccountEvent{
		AccountName:     str(fieldAccountName),
		AccountID:       str(fieldAccountID),
		ServerTimestamp: server,
	}
	if raw := str(fieldDeviceTimestamp); raw != "" {
		device, err := parser.ParseTimestamp(raw)
		if err != nil {
			return rec, err
		}
		rec.Event.DeviceTimestamp = &device
	}
	return rec, nil
}
