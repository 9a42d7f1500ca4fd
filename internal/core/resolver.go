package core

// resolver.go implements batch entity resolution against the directory
// service plus serial-number conflict detection against existing inventory.
//
// Resolution runs at most two sequential passes:
//
//	pass 1: usernames and explicitly mapped location strings
//	pass 2: the distinct office locations surfaced by pass-1 users,
//	        merged into the location map last (so pass 2 wins on collision)
//
// Directory batch calls are the only retried operation in the pipeline.
// After retries are exhausted the resolver degrades to empty maps so the
// import proceeds with unresolved identifiers preserved verbatim.

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Resolver batch-resolves usernames, location names, and serial numbers.
// It is stateless between calls and safe for concurrent use.
type Resolver struct {
	dir DirectoryClient
	inv InventoryStore
	log *slog.Logger

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewResolver creates a resolver over the given collaborators.
func NewResolver(dir DirectoryClient, inv InventoryStore, log *slog.Logger) *Resolver {
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{
		dir:             dir,
		inv:             inv,
		log:             log,
		maxRetries:      3,
		initialInterval: time.Second,
		maxInterval:     8 * time.Second,
	}
}

// NormalizeUsername strips a DOMAIN\ prefix and surrounding whitespace for
// directory lookup. The original raw value is preserved elsewhere; this is
// only the lookup key.
func NormalizeUsername(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.LastIndex(s, `\`); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// Resolve performs one resolution batch. Every submitted identifier appears
// in the result maps, nil when looked up but absent; callers can therefore
// tell a failed lookup apart from one that never happened. Resolve never
// fails the batch: exhausted retries degrade to empty maps.
func (r *Resolver) Resolve(ctx context.Context, req ResolutionRequest) ResolutionResult {
	result := ResolutionResult{
		Users:     make(map[string]*DirectoryUser),
		Locations: make(map[string]*DirectoryLocation),
		Conflicts: make(map[string]Conflict),
	}

	usernames := normalizeSet(req.Usernames, NormalizeUsername)
	locations := normalizeSet(req.LocationNames, strings.TrimSpace)

	// Pass 1: usernames and explicitly mapped location strings.
	if len(usernames) > 0 {
		users, err := r.lookupUsers(ctx, usernames)
		if err != nil {
			r.log.Warn("user resolution degraded to unresolved",
				"count", len(usernames), "error", err)
		}
		for _, name := range usernames {
			result.Users[name] = users[name]
		}
	}
	if len(locations) > 0 {
		locs, err := r.lookupLocations(ctx, locations, "locations")
		if err != nil {
			r.log.Warn("location resolution degraded to unresolved",
				"count", len(locations), "error", err)
		}
		for _, name := range locations {
			result.Locations[name] = locs[name]
		}
	}

	// Pass 2: office locations of the users pass 1 resolved. Strictly
	// sequenced after pass 1 and merged last, so pass-2 entries win when a
	// user-entered location string coincides with an office name.
	if offices := officeLocations(result.Users); len(offices) > 0 {
		locs, err := r.lookupLocations(ctx, offices, "office-locations")
		if err != nil {
			r.log.Warn("office location resolution degraded to unresolved",
				"count", len(offices), "error", err)
		}
		for _, name := range offices {
			result.Locations[name] = locs[name]
		}
	}

	// Serial conflicts are exact-match lookups against existing inventory.
	// Informational only: the conflict policy decides at submission time.
	for _, serial := range normalizeSet(req.SerialNumbers, strings.TrimSpace) {
		existing, err := r.inv.FindBySerial(ctx, serial)
		if err != nil {
			r.log.Warn("conflict lookup failed", "serial", serial, "error", err)
			continue
		}
		if existing != nil {
			result.Conflicts[serial] = Conflict{
				ExistingID:   existing.ID,
				ExistingTag:  existing.AssetTag,
				SerialNumber: serial,
			}
		}
	}

	return result
}

func (r *Resolver) lookupUsers(ctx context.Context, names []string) (map[string]*DirectoryUser, error) {
	var out map[string]*DirectoryUser
	err := r.retry(ctx, func() error {
		m, err := r.dir.LookupUsers(ctx, names)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, &ResolutionError{Stage: "users", Err: err}
	}
	return out, nil
}

func (r *Resolver) lookupLocations(ctx context.Context, names []string, stage string) (map[string]*DirectoryLocation, error) {
	var out map[string]*DirectoryLocation
	err := r.retry(ctx, func() error {
		m, err := r.dir.LookupLocations(ctx, names)
		if err != nil {
			return err
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, &ResolutionError{Stage: stage, Err: err}
	}
	return out, nil
}

// retry runs op with bounded exponential backoff. The submission itself is
// never retried this way; only resolver batches are safe to repeat.
func (r *Resolver) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = r.initialInterval
	policy.MaxInterval = r.maxInterval

	return backoff.RetryNotify(
		op,
		backoff.WithContext(backoff.WithMaxRetries(policy, r.maxRetries), ctx),
		func(err error, next time.Duration) {
			r.log.Warn("directory batch failed, retrying",
				"error", err, "retry_after", next)
		},
	)
}

// normalizeSet normalizes, deduplicates, and sorts identifiers, dropping
// empties so they are never submitted to the directory.
func normalizeSet(values []string, norm func(string) string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := norm(v)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// officeLocations collects the distinct non-empty office locations of
// resolved users, sorted for deterministic batch order.
func officeLocations(users map[string]*DirectoryUser) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range users {
		if u == nil || u.OfficeLocation == "" {
			continue
		}
		name := strings.TrimSpace(u.OfficeLocation)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
