// Package services – shared plumbing
//
// Deps carries the collaborators every service needs: the database, blob
// storage and the realtime publisher. Mutations run inside a single
// transaction and collect their side effects (realtime events, blob
// deletions) in an effects value that is flushed only after commit, so a
// rolled-back mutation never notifies anyone or deletes a file.
package services

import (
	"context"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/worldfriends-backend/internal/pagination"
	"github.com/tbourn/worldfriends-backend/internal/realtime"
	"github.com/tbourn/worldfriends-backend/internal/repo"
	"github.com/tbourn/worldfriends-backend/internal/storage"
)

// Deps bundles the collaborators shared by all services.
type Deps struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Blobs resolves and deletes media keys. May be nil in tests.
	Blobs storage.Blobs
	// Events receives post-commit invalidation events. May be nil.
	Events realtime.Publisher
	// Notifier appends notification rows inside mutations.
	Notifier *Notifier
}

// mutationsTotal counts service mutations by operation and outcome.
var mutationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "social_mutations_total",
		Help: "Total number of social mutations by operation and outcome.",
	},
	[]string{"op", "outcome"},
)

func init() {
	prometheus.MustRegister(mutationsTotal)
}

// outcome labels err by its kind.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, ErrNotAuthorized):
		return "not_authorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, ErrConflictState):
		return "conflict"
	default:
		return "error"
	}
}

// finish records the mutation outcome and ends span.
func finish(span trace.Span, op string, err error) {
	mutationsTotal.WithLabelValues(op, outcome(err)).Inc()
	if err != nil {
		span.RecordError(err)
		if outcome(err) == "error" {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
}

// decodeCursor parses a client cursor, reporting malformed input as an
// invalid argument.
func decodeCursor(cursor string) (*pagination.Key, error) {
	k, err := pagination.Decode(cursor)
	if err != nil {
		return nil, ErrBadCursor
	}
	return k, nil
}

func requireCaller(caller string) error {
	if strings.TrimSpace(caller) == "" {
		return errNoCaller
	}
	return nil
}

// mapNotFound converts repo.ErrNotFound into the given service error and
// passes every other error through.
func mapNotFound(err, notFound error) error {
	if repo.IsNotFound(err) {
		return notFound
	}
	return err
}

// effects are side effects deferred until the surrounding transaction
// commits.
type effects struct {
	events []realtime.Event
	blobs  []string
}

func (fx *effects) emit(typ, thread, resourceID string, users ...string) {
	fx.events = append(fx.events, realtime.Event{
		Type:       typ,
		Thread:     thread,
		ResourceID: resourceID,
		At:         repo.Now(),
		UserIDs:    users,
	})
}

func (fx *effects) deleteBlob(key string) {
	if key != "" {
		fx.blobs = append(fx.blobs, key)
	}
}

// tx runs fn in a transaction and, once it commits, flushes fx.
func (d *Deps) tx(ctx context.Context, fx *effects, fn func(tx *gorm.DB) error) error {
	if err := d.DB.WithContext(ctx).Transaction(fn); err != nil {
		return err
	}
	d.flush(ctx, fx)
	return nil
}

// flush publishes events and deletes blobs. Failures are logged and do not
// fail the already-committed mutation.
func (d *Deps) flush(ctx context.Context, fx *effects) {
	if fx == nil {
		return
	}
	if d.Events != nil {
		for _, ev := range fx.events {
			if err := d.Events.Publish(ctx, ev); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("event", ev.Type).Msg("realtime publish failed")
			}
		}
	}
	if d.Blobs != nil {
		for _, key := range fx.blobs {
			if err := d.Blobs.Delete(ctx, key); err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("blob delete failed")
			}
		}
	}
	fx.events, fx.blobs = nil, nil
}

// notify appends a notification inside tx and queues a realtime event for
// the recipient.
func (d *Deps) notify(ctx context.Context, tx *gorm.DB, fx *effects, recipient, sender, typ string) error {
	n := d.Notifier
	if n == nil {
		n = &Notifier{}
	}
	created, err := n.Notify(ctx, tx, recipient, sender, typ)
	if err != nil || !created {
		return err
	}
	fx.emit(realtime.EventNotification, "", typ, recipient)
	return nil
}

// publicURL resolves a blob key to a public URL, or "" without storage.
func (d *Deps) publicURL(key string) string {
	if d.Blobs == nil || key == "" {
		return ""
	}
	return d.Blobs.PublicURL(key)
}

// privateURL resolves a blob key to a signed URL, falling back to the
// public URL if signing fails.
func (d *Deps) privateURL(ctx context.Context, key string) string {
	if d.Blobs == nil || key == "" {
		return ""
	}
	u, err := d.Blobs.URL(ctx, key)
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("blob url failed")
		return d.Blobs.PublicURL(key)
	}
	return u
}
