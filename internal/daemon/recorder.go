package daemon

import (
	"context"
	"log/slog"
	"sync/atomic"

	"conductor/internal/connection"
	"conductor/internal/journal"
	"conductor/internal/logging"
	"conductor/internal/module"
	"conductor/internal/proto"
)

// pruneEvery bounds how often the recorder trims the journal.
const pruneEvery = 256

// recorder persists device, module, and session events in the journal.
// Journal failures are logged and swallowed; event delivery must never
// depend on the journal being healthy.
type recorder struct {
	store  *journal.Store
	retain int
	logger *slog.Logger

	appends atomic.Int64
}

func newRecorder(store *journal.Store, retain int, logger *slog.Logger) *recorder {
	return &recorder{
		store:  store,
		retain: retain,
		logger: logging.NewComponentLogger(logger, "event-recorder"),
	}
}

// HandleDeviceEvent implements connection.Listener. Telemetry updates are
// too chatty for the journal; discovery and connection transitions are kept.
func (r *recorder) HandleDeviceEvent(evt connection.Event) {
	if evt.Kind == connection.DeviceUpdated {
		return
	}
	r.append(context.Background(), journal.Event{
		Category:  journal.CategoryDevice,
		EventType: evt.Kind.String(),
		DeviceID:  evt.Device.DeviceID,
		ModuleID:  evt.Device.Spec.OwningModuleID,
		Message:   evt.Device.Spec.DisplayName,
		Detail: map[string]any{
			"family":    string(evt.Device.Spec.Family),
			"transport": string(evt.Device.Spec.Transport),
			"state":     string(evt.Device.State),
		},
	})
}

// HandleModuleState implements module.Listener.
func (r *recorder) HandleModuleState(moduleID string, state module.State) {
	r.append(context.Background(), journal.Event{
		Category:  journal.CategoryModule,
		EventType: "module_state",
		ModuleID:  moduleID,
		Message:   string(state),
	})
}

// HandleModuleStatus implements module.Listener. Routine status chatter is
// not journaled; errors and warnings are.
func (r *recorder) HandleModuleStatus(moduleID string, st proto.Status) {
	switch st.Status {
	case proto.StatusError, proto.StatusWarning:
	default:
		return
	}
	r.append(context.Background(), journal.Event{
		Category:  journal.CategoryModule,
		EventType: st.Status,
		ModuleID:  moduleID,
		Message:   st.DataString("message"),
		Detail:    st.Data,
	})
}

func (r *recorder) session(ctx context.Context, eventType, sessionID string) {
	r.append(ctx, journal.Event{
		Category:  journal.CategorySession,
		EventType: eventType,
		SessionID: sessionID,
	})
}

func (r *recorder) lifecycle(ctx context.Context, eventType, message string) {
	r.append(ctx, journal.Event{
		Category:  journal.CategoryLifecycle,
		EventType: eventType,
		Message:   message,
	})
}

func (r *recorder) append(ctx context.Context, evt journal.Event) {
	if err := r.store.Append(ctx, evt); err != nil {
		r.logger.Warn("journal append failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "journal_append_failed"),
			logging.String(logging.FieldErrorHint, "check journal database disk space and permissions"),
			logging.String(logging.FieldImpact, "event history incomplete"),
		)
		return
	}
	if r.appends.Add(1)%pruneEvery == 0 {
		if _, err := r.store.Prune(ctx, r.retain); err != nil {
			r.logger.Warn("journal prune failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "journal_prune_failed"),
			)
		}
	}
}
