package services

import (
	"context"
	"time"

	"github.com/Larvizub/arvidev-presupuestos/internal/events"
	"github.com/Larvizub/arvidev-presupuestos/internal/logger"
	"github.com/Larvizub/arvidev-presupuestos/internal/models"
	"github.com/Larvizub/arvidev-presupuestos/internal/store"
)

const defaultActivityLimit = 50

// activityService records the audit log under userActivity/{uid}.
type activityService struct {
	store     store.Store
	publisher events.Publisher
	now       func() time.Time
}

// NewActivityService creates a new ActivityServicer. A nil publisher disables
// the fan-out.
func NewActivityService(st store.Store, publisher events.Publisher) ActivityServicer {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &activityService{store: st, publisher: publisher, now: time.Now}
}

// Log records an activity entry. Errors are logged but never propagate
// to avoid disrupting the main operation.
func (s *activityService) Log(ctx context.Context, userID, action string, details map[string]any) {
	log := logger.Named("activity")

	id, err := s.store.Push(ctx, activityPath(userID))
	if err != nil {
		log.Errorw("failed to allocate activity entry", "error", err, "user_id", userID, "action", action)
		return
	}

	entry := models.ActivityEntry{
		ID:        id,
		UserID:    userID,
		Action:    action,
		Details:   details,
		Timestamp: s.now().UTC(),
	}

	record := make(map[string]any, len(details)+2)
	for k, v := range details {
		record[k] = v
	}
	record["action"] = action
	record["timestamp"] = timestamp(entry.Timestamp)

	if err := s.store.Set(ctx, store.Join(activityPath(userID), id), record); err != nil {
		log.Errorw("failed to create activity entry",
			"error", err,
			"user_id", userID,
			"action", action,
		)
		return
	}

	if err := s.publisher.PublishActivity(ctx, events.NewActivityMessage(entry)); err != nil {
		log.Warnw("failed to publish activity entry", "error", err, "id", id, "action", action)
	}
}

// List returns the most recent entries of a user, newest first.
func (s *activityService) List(ctx context.Context, userID string, limit int) ([]models.ActivityEntry, error) {
	if !validID(userID) {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultActivityLimit
	}

	snap, err := s.store.Get(ctx, activityPath(userID))
	if err != nil {
		return nil, storeError(err)
	}

	children := snap.Children()
	entries := make([]models.ActivityEntry, 0, min(limit, len(children)))
	// Push keys sort in creation order.
	for i := len(children) - 1; i >= 0 && len(entries) < limit; i-- {
		entries = append(entries, decodeActivity(userID, children[i]))
	}
	return entries, nil
}

func decodeActivity(userID string, snap store.Snapshot) models.ActivityEntry {
	entry := models.ActivityEntry{ID: snap.Key(), UserID: userID}
	fields, _ := snap.Value.(map[string]any)
	details := make(map[string]any, len(fields))
	for k, v := range fields {
		switch k {
		case "action":
			entry.Action, _ = v.(string)
		case "timestamp":
			if ts, ok := v.(string); ok {
				entry.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
			}
		default:
			details[k] = v
		}
	}
	if len(details) > 0 {
		entry.Details = details
	}
	return entry
}
