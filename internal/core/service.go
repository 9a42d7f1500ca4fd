package core

// service.go wires the pipeline stages into the import service the HTTP
// layer talks to. A submission runs in the background; callers follow it
// through the progress hub or block on WaitForResult with a wall-clock
// ceiling.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultWaitCeiling is the client-side wall-clock bound on WaitForResult.
// Expiry aborts only the wait; the server-side import keeps running.
const DefaultWaitCeiling = 5 * time.Minute

// SubmitRequest is one import submission.
type SubmitRequest struct {
	// SessionID is client-generated; empty means the service assigns one.
	SessionID string `json:"sessionId,omitempty"`

	// SourceID selects a registered transformation module. Empty falls back
	// to custom Mappings, or the legacy alias table when those are empty too.
	SourceID string `json:"sourceId,omitempty"`

	// Category selects the filter rule set together with SourceID.
	Category string `json:"category,omitempty"`

	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`

	// Mappings override the registered module when present.
	Mappings []ColumnMapping `json:"-"`

	// ExtraRules are appended to the registered rule set, AND-combined.
	ExtraRules []FilterRule `json:"extraRules,omitempty"`

	Policy ConflictPolicy `json:"conflictPolicy,omitempty"`
}

// Service is the import pipeline facade.
type Service struct {
	dir      DirectoryClient
	store    InventoryStore
	hub      *ProgressHub
	resolver *Resolver
	executor *Executor
	limiter  *ImportLimiter
	log      *slog.Logger

	waitCeiling time.Duration
	cancels     *sessionCancels
}

// ServiceOptions tunes service construction. Zero values pick defaults.
type ServiceOptions struct {
	MaxConcurrent int
	MaxWaitTime   time.Duration
	WaitCeiling   time.Duration
}

// NewService builds a service over the given collaborators.
func NewService(dir DirectoryClient, store InventoryStore, log *slog.Logger, opts ServiceOptions) *Service {
	if log == nil {
		log = slog.Default()
	}
	if opts.WaitCeiling <= 0 {
		opts.WaitCeiling = DefaultWaitCeiling
	}
	hub := NewProgressHub()
	return &Service{
		dir:         dir,
		store:       store,
		hub:         hub,
		resolver:    NewResolver(dir, store, log),
		executor:    NewExecutor(store, hub, log),
		limiter:     NewImportLimiter(opts.MaxConcurrent, opts.MaxWaitTime),
		log:         log,
		waitCeiling: opts.WaitCeiling,
		cancels:     newSessionCancels(),
	}
}

// StartImport validates a submission, acquires an execution slot, and runs
// the pipeline in the background. It returns the session ID immediately;
// progress flows through SubscribeProgress.
func (s *Service) StartImport(ctx context.Context, req SubmitRequest) (string, error) {
	if len(req.Rows) == 0 {
		return "", ValidationError{Message: "no rows submitted"}
	}
	if len(req.Header) == 0 {
		return "", ValidationError{Field: "header", Message: "header row required"}
	}
	switch req.Policy {
	case ConflictSkip, ConflictOverwrite:
	case "":
		req.Policy = ConflictSkip
	default:
		return "", ValidationError{Field: "conflictPolicy", Message: fmt.Sprintf("unknown policy %q", req.Policy)}
	}
	if len(req.Mappings) > 0 {
		if err := ValidateMappings(req.Mappings); err != nil {
			return "", ValidationError{Field: "mappings", Message: err.Error()}
		}
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if err := s.hub.Open(sessionID); err != nil {
		return "", err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		s.hub.CloseSession(sessionID)
		return "", err
	}

	// The run outlives the submitting request; it gets its own context so
	// only Cancel or shutdown stops it.
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancels.add(sessionID, cancel)

	go func() {
		defer s.limiter.Release()
		defer s.cancels.remove(sessionID)
		defer cancel()
		s.run(runCtx, sessionID, req)
	}()

	return sessionID, nil
}

// run executes the full pipeline for one submission.
func (s *Service) run(ctx context.Context, sessionID string, req SubmitRequest) {
	log := s.log.With("session_id", sessionID, "source_id", req.SourceID)

	idx := MakeHeaderIndex(req.Header)

	rows := make([]SourceRow, 0, len(req.Rows))
	for i, raw := range req.Rows {
		var result TransformResult
		if len(req.Mappings) > 0 {
			result = ApplyMappings(req.Mappings, raw, idx)
		} else {
			result = Transform(req.SourceID, raw, idx)
		}
		rows = append(rows, SourceRow{Index: i, Raw: raw, Result: result})
	}

	outcome := ApplyFilter(rows, RuleSetKey{SourceID: req.SourceID, Category: req.Category}, req.ExtraRules)
	if outcome.Stats.Excluded > 0 {
		log.Info("filter excluded rows",
			"filter", outcome.Stats.FilterName,
			"included", outcome.Stats.Included,
			"excluded", outcome.Stats.Excluded)
	}

	res := s.resolver.Resolve(ctx, gatherIdentifiers(outcome.Included))
	finalized := FinalizeRows(outcome.Included, res)

	final := s.executor.Run(ctx, sessionID, finalized, req.Policy)

	// Audit row for stores that keep one. Recorded even when the run was
	// cancelled, so WithoutCancel.
	if rec, ok := s.store.(SessionRecorder); ok {
		if err := rec.RecordSession(context.WithoutCancel(ctx), req.SourceID, final); err != nil {
			log.Warn("session audit record failed", "error", err)
		}
	}
}

// gatherIdentifiers collects the identifier batches one resolution call
// needs for a set of rows.
func gatherIdentifiers(rows []SourceRow) ResolutionRequest {
	var req ResolutionRequest
	for _, row := range rows {
		if v := row.Result.Direct[FieldAssignedUser]; v != "" {
			req.Usernames = append(req.Usernames, v)
		}
		if v := row.Result.Direct[FieldLocation]; v != "" {
			req.LocationNames = append(req.LocationNames, v)
		}
		if v := row.Result.Direct[FieldSerialNumber]; v != "" {
			req.SerialNumbers = append(req.SerialNumbers, v)
		}
	}
	return req
}

// SubscribeProgress attaches to a session's snapshot stream.
func (s *Service) SubscribeProgress(sessionID string) (<-chan ImportSession, error) {
	return s.hub.Subscribe(sessionID)
}

// Result returns the most recent snapshot for a session.
func (s *Service) Result(sessionID string) (ImportSession, error) {
	snap, ok := s.hub.Last(sessionID)
	if !ok {
		return ImportSession{}, ErrSessionNotFound
	}
	return snap, nil
}

// WaitForResult blocks until the session reaches a terminal state or the
// wait ceiling expires. Expiry returns ErrWaitTimeout, distinct from any
// import failure; the import itself keeps running.
func (s *Service) WaitForResult(ctx context.Context, sessionID string) (ImportSession, error) {
	ch, err := s.hub.Subscribe(sessionID)
	if err != nil {
		return ImportSession{}, err
	}

	timer := time.NewTimer(s.waitCeiling)
	defer timer.Stop()

	var last ImportSession
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-timer.C:
			return last, ErrWaitTimeout
		case snap, ok := <-ch:
			if !ok {
				if last.State == StateCompleted || last.State == StateFailed {
					return last, nil
				}
				return last, ErrSessionNotFound
			}
			last = snap
			if snap.State == StateCompleted || snap.State == StateFailed {
				return snap, nil
			}
		}
	}
}

// Cancel aborts a running import. The executor marks the session failed at
// the row it was on; already-written rows stay written.
func (s *Service) Cancel(sessionID string) error {
	if !s.cancels.cancel(sessionID) {
		return ErrSessionNotFound
	}
	return nil
}

// ResolveEntities runs one resolution batch outside an import, for
// pre-submission preview.
func (s *Service) ResolveEntities(ctx context.Context, req ResolutionRequest) ResolutionResult {
	return s.resolver.Resolve(ctx, req)
}

// ListSources returns the registered source formats.
func (s *Service) ListSources() []SourceInfo {
	defs := Sources()
	out := make([]SourceInfo, 0, len(defs))
	for _, def := range defs {
		out = append(out, def.Info)
	}
	return out
}

// DetectSourceFor guesses the source for a header row. An empty ID means no
// registered source cleared the match threshold.
func (s *Service) DetectSourceFor(header []string) (string, float64) {
	return DetectSource(header)
}

// Drain blocks until in-flight imports finish, for graceful shutdown.
func (s *Service) Drain(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// ActiveImports returns how many imports are currently executing.
func (s *Service) ActiveImports() int {
	return s.limiter.ActiveCount()
}

// sessionCancels tracks cancellation funcs for running imports.
type sessionCancels struct {
	mu sync.Mutex
	m  map[string]context.CancelFunc
}

func newSessionCancels() *sessionCancels {
	return &sessionCancels{m: make(map[string]context.CancelFunc)}
}

func (c *sessionCancels) add(id string, fn context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[id] = fn
}

func (c *sessionCancels) remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
}

func (c *sessionCancels) cancel(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok := c.m[id]
	if ok {
		fn()
	}
	return ok
}
