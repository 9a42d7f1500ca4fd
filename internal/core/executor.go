package core

// executor.go runs the submission phase: Idle -> Submitting -> Streaming ->
// Completed or Failed. Individual row failures never abort the batch; the
// executor records them and keeps going. Failed is reserved for batch-level
// faults such as cancellation mid-stream.

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// Executor writes finalized rows to the inventory store and publishes a
// snapshot after every row.
type Executor struct {
	store InventoryStore
	hub   *ProgressHub
	log   *slog.Logger
	rules []CategoryRule
}

// NewExecutor creates an executor over the given store and hub.
func NewExecutor(store InventoryStore, hub *ProgressHub, log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		store: store,
		hub:   hub,
		log:   log,
		rules: DefaultCategoryRules,
	}
}

// Run executes one import batch and returns the terminal session. Every row
// is consumed exactly once and lands in exactly one of created, errors, or
// skippedItems. Processed only ever increases. The terminal snapshot is
// published before the session's progress channel closes.
func (e *Executor) Run(ctx context.Context, sessionID string, rows []FinalizedRow, policy ConflictPolicy) ImportSession {
	sess := ImportSession{
		SessionID: sessionID,
		State:     StateSubmitting,
		Total:     len(rows),
	}
	e.publish(sess)

	sess.State = StateStreaming
	e.publish(sess)

	users := make(map[string]bool)
	locations := make(map[string]bool)
	types := make(map[string]int)
	statuses := make(map[string]int)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			sess.State = StateFailed
			sess.CurrentItem = ""
			sess.Errors = append(sess.Errors, RowError{
				Index:   row.Index,
				Message: "import aborted: " + err.Error(),
			})
			e.log.Warn("import aborted mid-stream",
				"session_id", sessionID, "processed", sess.Processed, "error", err)
			e.finish(&sess)
			return sess
		}

		sess.CurrentItem = rowLabel(row)

		switch {
		case len(row.ValidationErrors) > 0:
			sess.Failed++
			sess.Errors = append(sess.Errors, RowError{
				Index:   row.Index,
				Message: strings.Join(row.ValidationErrors, "; "),
				RawData: rawFragment(row.Original),
			})

		case row.ConflictSerial != "" && policy == ConflictSkip:
			sess.Skipped++
			sess.SkippedItems = append(sess.SkippedItems, SkippedItem{
				Index:   row.Index,
				Reason:  fmt.Sprintf("serial %s already exists", row.ConflictSerial),
				RawData: rawFragment(row.Original),
			})

		default:
			if err := e.writeRow(ctx, &sess, row, policy); err != nil {
				sess.Failed++
				sess.Errors = append(sess.Errors, RowError{
					Index:   row.Index,
					Message: err.Error(),
					RawData: rawFragment(row.Original),
				})
				e.log.Warn("row write failed",
					"session_id", sessionID, "row", row.Index, "error", err)
			} else {
				sess.Successful++
				if row.UnresolvedUsername == "" {
					if id := row.Direct[FieldAssignedUser]; id != "" {
						users[id] = true
					}
				}
				if row.UnresolvedLocation == "" {
					if id := row.Direct[FieldLocation]; id != "" {
						locations[id] = true
					}
				}
				if t := row.Direct[FieldDeviceType]; t != "" {
					types[t]++
				}
				if st := row.Direct[FieldStatus]; st != "" {
					statuses[st]++
				}
			}
		}

		sess.Processed++
		e.publish(sess)
	}

	sess.State = StateCompleted
	sess.CurrentItem = ""
	sess.Stats = ImportStats{
		Categorized:     categorize(rows, e.rules),
		UniqueUsers:     len(users),
		UniqueLocations: len(locations),
		TypeBreakdown:   types,
		StatusBreakdown: statuses,
	}
	e.log.Info("import completed",
		"session_id", sessionID,
		"total", sess.Total,
		"successful", sess.Successful,
		"failed", sess.Failed,
		"skipped", sess.Skipped)
	e.finish(&sess)
	return sess
}

// writeRow persists one row: update-in-place for overwrite conflicts,
// insert otherwise. Only inserts land in created.
func (e *Executor) writeRow(ctx context.Context, sess *ImportSession, row FinalizedRow, policy ConflictPolicy) error {
	rec := AssetRecord{
		AssetTag:     row.Direct[FieldAssetTag],
		SerialNumber: row.Direct[FieldSerialNumber],
		Fields:       row.Direct,
		Extended:     row.Extended,
	}

	if row.ConflictSerial != "" && policy == ConflictOverwrite {
		if err := e.store.Update(ctx, row.ExistingID, rec); err != nil {
			return &RowWriteError{Index: row.Index, Err: err}
		}
		return nil
	}

	id, err := e.store.Create(ctx, rec)
	if err != nil {
		return &RowWriteError{Index: row.Index, Err: err}
	}
	sess.Created = append(sess.Created, id)
	return nil
}

func (e *Executor) publish(sess ImportSession) {
	if e.hub != nil {
		e.hub.Publish(sess.clone())
	}
}

// finish publishes the terminal snapshot and then closes the session's
// progress channel, in that order, so subscribers always see the terminal
// state before the stream ends.
func (e *Executor) finish(sess *ImportSession) {
	e.publish(*sess)
	if e.hub != nil {
		e.hub.CloseSession(sess.SessionID)
	}
}

// categorize counts rule hits across the whole batch, skipped and failed
// rows included, so the counts describe what arrived rather than what stuck.
func categorize(rows []FinalizedRow, rules []CategoryRule) []CategoryCount {
	out := make([]CategoryCount, 0, len(rules))
	for _, rule := range rules {
		n := 0
		for _, row := range rows {
			if rule.Match(row) {
				n++
			}
		}
		if n > 0 {
			out = append(out, CategoryCount{Rule: rule.Name, Count: n})
		}
	}
	return out
}

// rowLabel is the operator-facing identifier shown as currentItem.
func rowLabel(row FinalizedRow) string {
	if tag := row.Direct[FieldAssetTag]; tag != "" {
		return tag
	}
	if serial := row.Direct[FieldSerialNumber]; serial != "" {
		return serial
	}
	return fmt.Sprintf("row %d", row.Index)
}
