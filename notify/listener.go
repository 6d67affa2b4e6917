package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	infraerrors "github.com/r3e-network/objectstore/infrastructure/errors"
	"github.com/r3e-network/objectstore/infrastructure/logging"
	"github.com/r3e-network/objectstore/store"
)

// Channel is the single Postgres NOTIFY channel every object_events row
// publishes to (see migrations/ for the trigger that calls pg_notify on
// this channel).
const Channel = "object_events"

// CheckpointStore persists a subscriber's durable catch-up position,
// grounded on
// _examples/original_source/store/subscriptions.py's
// _load_checkpoint/_save_checkpoint against its subscription_checkpoints
// table.
type CheckpointStore interface {
	LoadCheckpoint(ctx context.Context, subscriberID string) (time.Time, bool, error)
	SaveCheckpoint(ctx context.Context, subscriberID string, txTime time.Time) error
}

// CatchUpFunc returns every ChangeEvent with TxTime > since, in ascending
// order, used to replay whatever a listener missed while disconnected or
// never having run before.
type CatchUpFunc func(ctx context.Context, since time.Time) ([]store.ChangeEvent, error)

// Listener is a cross-process subscriber: it LISTENs on Channel, replays
// missed events via CatchUpFunc on start and on every reconnect, and
// persists its position after each dispatch so a crash resumes exactly
// where it left off. Adapted from pkg/pgnotify/bus.go's listen/reconnect
// loop (Bus in that file served many channels and table-change triggers
// generically; Listener narrows this to the single object_events channel
// the migrations/ schema defines, and adds the checkpoint persistence
// subscriptions.py's SubscriptionListener layers on top).
type Listener struct {
	subscriberID string
	checkpoints  CheckpointStore
	catchUp      CatchUpFunc
	bus          *Bus
	pqListener   *pq.Listener
	stopCh       chan struct{}
	doneCh       chan struct{}
	logger       *logging.Logger
}

// NewListener returns a Listener that dispatches to bus. dsn is the
// Postgres connection string LISTEN runs against.
func NewListener(dsn, subscriberID string, checkpoints CheckpointStore, catchUp CatchUpFunc, bus *Bus) *Listener {
	reportProblem := func(_ pq.ListenerEventType, err error) {
		if err != nil {
			logging.ErrorDefault(context.Background(), "notify: listener connection event", err)
		}
	}
	return &Listener{
		subscriberID: subscriberID,
		checkpoints:  checkpoints,
		catchUp:      catchUp,
		bus:          bus,
		pqListener:   pq.NewListener(dsn, 10*time.Second, time.Minute, reportProblem),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		logger:       logging.Default(),
	}
}

// Start LISTENs on Channel, replays any events missed since the last saved
// checkpoint, then begins the dispatch loop in the background.
func (l *Listener) Start(ctx context.Context) error {
	if err := l.pqListener.Listen(Channel); err != nil {
		return infraerrors.Wrap(infraerrors.ErrCodeNotificationBusy, "listen on "+Channel, 0, err)
	}
	if err := l.replayMissed(ctx); err != nil {
		return err
	}
	go l.loop()
	return nil
}

// replayMissed loads the checkpoint and dispatches every event since,
// saving the checkpoint after each — this is the "catch up" path run both
// at startup and after a detected reconnect.
func (l *Listener) replayMissed(ctx context.Context) error {
	since, found, err := l.checkpoints.LoadCheckpoint(ctx, l.subscriberID)
	if err != nil {
		return err
	}
	if !found {
		since = time.Time{}
	}
	missed, err := l.catchUp(ctx, since)
	if err != nil {
		return err
	}
	for _, ev := range missed {
		l.bus.Emit(ev)
		if err := l.checkpoints.SaveCheckpoint(ctx, l.subscriberID, ev.TxTime); err != nil {
			return err
		}
	}
	return nil
}

// loop dispatches live notifications until Stop is called. A nil value on
// the Notify channel signals the underlying connection was lost and
// pq.Listener has reconnected silently — per SPEC_FULL §4.5 this requires
// a fresh catch-up pass since NOTIFY delivery during the outage was lost.
func (l *Listener) loop() {
	defer close(l.doneCh)
	ctx := context.Background()

	for {
		select {
		case <-l.stopCh:
			return

		case n := <-l.pqListener.Notify:
			if n == nil {
				if err := l.replayMissed(ctx); err != nil {
					l.logger.Error(ctx, "notify: post-reconnect catch-up failed", err, nil)
				}
				continue
			}
			l.handleNotification(ctx, n)

		case <-time.After(90 * time.Second):
			if err := l.pqListener.Ping(); err != nil {
				l.logger.Error(ctx, "notify: listener ping failed", err, nil)
			}
		}
	}
}

func (l *Listener) handleNotification(ctx context.Context, n *pq.Notification) {
	var ev store.ChangeEvent
	if err := json.Unmarshal([]byte(n.Extra), &ev); err != nil {
		l.logger.Error(ctx, "notify: malformed NOTIFY payload", fmt.Errorf("%w", err), map[string]any{"payload": n.Extra})
		return
	}
	l.bus.Emit(ev)
	if err := l.checkpoints.SaveCheckpoint(ctx, l.subscriberID, ev.TxTime); err != nil {
		l.logger.Error(ctx, "notify: save checkpoint failed", err, map[string]any{"subscriber_id": l.subscriberID})
	}
}

// Stop terminates the dispatch loop cooperatively: it lets the in-flight
// notification finish (its checkpoint is already saved by the time Stop
// returns control to loop) and closes the underlying connection.
func (l *Listener) Stop() {
	close(l.stopCh)
	<-l.doneCh
	_ = l.pqListener.Close()
}
