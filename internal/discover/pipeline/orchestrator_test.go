// Marquee - Media Discovery and Recommendation Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/marquee

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/marquee/internal/discover"
	"github.com/tomtom215/marquee/internal/discover/enrich"
	"github.com/tomtom215/marquee/internal/discover/pool"
	"github.com/tomtom215/marquee/internal/discover/scoring"
	"github.com/tomtom215/marquee/internal/events"
)

// memStore implements every storage interface of the pipeline in memory.
type memStore struct {
	mu sync.Mutex

	library map[int64]map[int64]struct{}
	watched map[int64]map[int64]struct{}
	taste   map[int64]*discover.TasteSignal
	users   []discover.User

	pool    map[discover.MediaType][]discover.PoolCandidate
	runs    map[string]*discover.DiscoveryRun
	counts  map[string][]discover.RunCounts
	results map[int64][]discover.ScoredCandidate

	nextID     int
	historyErr error
	tasteErr   error
	failUser   int64
}

func newMemStore() *memStore {
	return &memStore{
		library: make(map[int64]map[int64]struct{}),
		watched: make(map[int64]map[int64]struct{}),
		taste:   make(map[int64]*discover.TasteSignal),
		pool:    make(map[discover.MediaType][]discover.PoolCandidate),
		runs:    make(map[string]*discover.DiscoveryRun),
		counts:  make(map[string][]discover.RunCounts),
		results: make(map[int64][]discover.ScoredCandidate),
	}
}

func (s *memStore) LibraryExternalIDs(_ context.Context, userID int64, _ discover.MediaType) (map[int64]struct{}, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.library[userID], nil
}

func (s *memStore) WatchedExternalIDs(_ context.Context, userID int64, _ discover.MediaType) (map[int64]struct{}, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	return s.watched[userID], nil
}

func (s *memStore) GetUserTaste(_ context.Context, userID int64, _ discover.MediaType) (*discover.TasteSignal, error) {
	if s.tasteErr != nil && (s.failUser == 0 || s.failUser == userID) {
		return nil, s.tasteErr
	}
	if t, ok := s.taste[userID]; ok {
		return t, nil
	}
	return &discover.TasteSignal{}, nil
}

func (s *memStore) GetContentEmbeddings(context.Context, discover.MediaType, []int64) (map[int64][]float32, error) {
	return map[int64][]float32{}, nil
}

func (s *memStore) UpsertPoolCandidates(_ context.Context, mediaType discover.MediaType, candidates []discover.PoolCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool[mediaType] = append([]discover.PoolCandidate(nil), candidates...)
	return nil
}

func (s *memStore) GetPoolCandidates(_ context.Context, mediaType discover.MediaType) ([]discover.PoolCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]discover.PoolCandidate(nil), s.pool[mediaType]...), nil
}

func (s *memStore) CreateRun(_ context.Context, run *discover.DiscoveryRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	run.ID = fmt.Sprintf("run-%d", s.nextID)
	run.Status = discover.RunStatusRunning
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memStore) UpdateRunCounts(_ context.Context, runID string, counts discover.RunCounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return errors.New("no such run")
	}
	if run.Status.IsTerminal() {
		return discover.ErrRunFinalized
	}
	run.Counts = counts
	s.counts[runID] = append(s.counts[runID], counts)
	return nil
}

func (s *memStore) finish(run *discover.DiscoveryRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.runs[run.ID]
	if !ok {
		return errors.New("no such run")
	}
	if stored.Status.IsTerminal() {
		return discover.ErrRunFinalized
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *memStore) CompleteRun(_ context.Context, run *discover.DiscoveryRun) error {
	return s.finish(run)
}

func (s *memStore) FailRun(_ context.Context, run *discover.DiscoveryRun) error {
	return s.finish(run)
}

func (s *memStore) ReplaceCandidates(_ context.Context, run *discover.DiscoveryRun, candidates []discover.ScoredCandidate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[run.UserID] = append([]discover.ScoredCandidate(nil), candidates...)
	return nil
}

func (s *memStore) StoredExternalIDs(_ context.Context, userID int64, _ discover.MediaType) (map[int64]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make(map[int64]struct{})
	for _, c := range s.results[userID] {
		ids[c.ExternalID] = struct{}{}
	}
	return ids, nil
}

func (s *memStore) ListEnabledUsers(context.Context) ([]discover.User, error) {
	return s.users, nil
}

type countingGlobal struct {
	items []discover.RawCandidate
	calls int
}

func (g *countingGlobal) Name() string { return "test_global" }

func (g *countingGlobal) FetchGlobal(context.Context, discover.MediaType, int) ([]discover.RawCandidate, error) {
	g.calls++
	return append([]discover.RawCandidate(nil), g.items...), nil
}

type staticPersonal struct {
	items []discover.RawCandidate
}

func (p *staticPersonal) Name() string { return "test_personal" }

func (p *staticPersonal) FetchPersonalized(context.Context, int64, discover.MediaType, int) ([]discover.RawCandidate, error) {
	return append([]discover.RawCandidate(nil), p.items...), nil
}

type detailStub struct{}

func (detailStub) Details(context.Context, discover.MediaType, int64) (*discover.Details, error) {
	return &discover.Details{Tagline: "tagline", RuntimeMinutes: 100}, nil
}

type eventRecorder struct {
	mu     sync.Mutex
	events []*events.Event
}

func (r *eventRecorder) Publish(_ context.Context, e *events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []events.Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Type, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func candidates(n int) []discover.RawCandidate {
	genres := []string{"Drama", "Comedy", "Thriller", "Horror"}
	out := make([]discover.RawCandidate, n)
	for i := range out {
		out[i] = discover.RawCandidate{
			ExternalID:  int64(i + 1),
			Title:       fmt.Sprintf("Title %d", i+1),
			ReleaseYear: 2000 + i%25,
			Genres:      []string{genres[i%len(genres)]},
			Providers:   []string{fmt.Sprintf("studio-%d", i%3)},
			Popularity:  float64(n - i),
			VoteAverage: 5 + float64(i%5),
			VoteCount:   500,
			Source:      "test_global",
		}
	}
	return out
}

type fixture struct {
	store  *memStore
	global *countingGlobal
	events *eventRecorder
	orch   *Orchestrator
}

func newFixture(t *testing.T, global []discover.RawCandidate, personal []discover.RawCandidate) *fixture {
	t.Helper()
	logger := zerolog.Nop()
	store := newMemStore()
	g := &countingGlobal{items: global}
	rec := &eventRecorder{}

	cfg := discover.DefaultConfig()
	cfg.MaxTotalCandidates = 20
	cfg.MaxEnrichedCandidates = 5
	cfg.TargetDisplayCount = 10

	var personalSources []pool.PersonalSource
	if personal != nil {
		personalSources = append(personalSources, &staticPersonal{items: personal})
	}
	manager := pool.NewManager([]pool.GlobalSource{g}, personalSources, pool.NewCache(store, time.Hour, logger), logger)

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	orch := New(Deps{
		Pool:    manager,
		Filter:  NewFilter(store, logger),
		Scorer:  scoring.NewScorer(store, logger, scoring.WithClock(func() time.Time { return now })),
		Gate:    enrich.NewGate(detailStub{}, logger),
		Runs:    store,
		Results: store,
		Users:   store,
		Events:  rec,
		Config:  cfg,
		Logger:  logger,
	})
	return &fixture{store: store, global: g, events: rec, orch: orch}
}

func TestGenerateForUserColdStart(t *testing.T) {
	f := newFixture(t, candidates(40), nil)

	res, err := f.orch.GenerateForUser(context.Background(), 1, discover.MediaTypeMovie, Options{})
	if err != nil {
		t.Fatalf("GenerateForUser() error = %v", err)
	}

	run := res.Run
	if run.Status != discover.RunStatusCompleted || run.FinishedAt == nil {
		t.Fatalf("run = %+v, want completed", run)
	}
	if run.Counts.Filtered != run.Counts.Fetched {
		t.Errorf("Filtered = %d, Fetched = %d; nothing should be filtered for a new user", run.Counts.Filtered, run.Counts.Fetched)
	}
	if run.Counts.Stored != 20 || len(res.Candidates) != 20 {
		t.Errorf("Stored = %d, len = %d; want 20", run.Counts.Stored, len(res.Candidates))
	}
	for _, c := range res.Candidates {
		if c.Similarity != scoring.Neutral || c.Novelty != scoring.Neutral {
			t.Fatalf("candidate %d similarity/novelty = %v/%v, want neutral", c.ExternalID, c.Similarity, c.Novelty)
		}
	}
	if res.Enrichment.Enriched != 5 {
		t.Errorf("Enriched = %d, want 5", res.Enrichment.Enriched)
	}

	stored := f.store.runs[run.ID]
	if stored.Status != discover.RunStatusCompleted || stored.Counts != run.Counts {
		t.Errorf("stored run = %+v", stored)
	}
	if len(f.store.results[1]) != 20 {
		t.Errorf("stored candidates = %d, want 20", len(f.store.results[1]))
	}
}

func TestGenerateForUserCountsMonotonic(t *testing.T) {
	f := newFixture(t, candidates(60), nil)
	f.store.watched[1] = map[int64]struct{}{1: {}, 2: {}, 3: {}}
	f.store.library[1] = map[int64]struct{}{10: {}}

	res, err := f.orch.GenerateForUser(context.Background(), 1, discover.MediaTypeMovie, Options{})
	if err != nil {
		t.Fatalf("GenerateForUser() error = %v", err)
	}

	snapshots := f.store.counts[res.Run.ID]
	if len(snapshots) != 4 {
		t.Fatalf("counter updates = %d, want one per stage (4)", len(snapshots))
	}
	for i, c := range snapshots {
		if err := c.Check(); err != nil {
			t.Errorf("snapshot %d: %v", i, err)
		}
	}
	final := res.Run.Counts
	if final.Fetched != 60 || final.Filtered != 56 || final.Scored != 56 || final.Stored != 20 {
		t.Errorf("counts = %+v", final)
	}
}

func TestGenerateForUserFilterDisjoint(t *testing.T) {
	personal := []discover.RawCandidate{
		{ExternalID: 5, Title: "Watched pick", Source: "test_personal", SourceScore: 0.9},
		{ExternalID: 100, Title: "Fresh pick", Source: "test_personal", SourceScore: 0.8},
	}
	f := newFixture(t, candidates(30), personal)
	watched := map[int64]struct{}{5: {}, 6: {}, 7: {}}
	owned := map[int64]struct{}{8: {}, 100: {}}
	f.store.watched[2] = watched
	f.store.library[2] = owned

	res, err := f.orch.GenerateForUser(context.Background(), 2, discover.MediaTypeMovie, Options{})
	if err != nil {
		t.Fatalf("GenerateForUser() error = %v", err)
	}
	for _, c := range f.store.results[2] {
		if _, ok := watched[c.ExternalID]; ok {
			t.Errorf("watched title %d stored", c.ExternalID)
		}
		if _, ok := owned[c.ExternalID]; ok {
			t.Errorf("owned title %d stored", c.ExternalID)
		}
	}
	if res.Run.Counts.Fetched != 31 {
		t.Errorf("Fetched = %d, want 31 (30 global + 1 new personalized)", res.Run.Counts.Fetched)
	}
}

func TestGenerateForUserFailure(t *testing.T) {
	f := newFixture(t, candidates(10), nil)
	boom := errors.New("taste store unavailable")
	f.store.tasteErr = boom

	res, err := f.orch.GenerateForUser(context.Background(), 1, discover.MediaTypeMovie, Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("GenerateForUser() error = %v, want wrapped taste error", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil on failure", res)
	}

	if len(f.store.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(f.store.runs))
	}
	for _, run := range f.store.runs {
		if run.Status != discover.RunStatusFailed || run.Error == "" || run.FinishedAt == nil {
			t.Errorf("run = %+v, want failed with message", run)
		}
		// Fetch and filter completed before the failure
		if run.Counts.Fetched != 10 || run.Counts.Filtered != 10 || run.Counts.Scored != 0 {
			t.Errorf("partial counts = %+v", run.Counts)
		}
	}

	types := f.events.types()
	if len(types) == 0 || types[0] != events.TypeRunStarted || types[len(types)-1] != events.TypeRunFailed {
		t.Errorf("event types = %v", types)
	}
}

// completeFailStore fails CompleteRun and delegates everything else.
type completeFailStore struct {
	*memStore
	err error
}

func (s *completeFailStore) CompleteRun(context.Context, *discover.DiscoveryRun) error {
	return s.err
}

func TestGenerateForUserCompleteRunError(t *testing.T) {
	f := newFixture(t, candidates(10), nil)
	diskFull := errors.New("disk full")
	f.orch.runs = &completeFailStore{memStore: f.store, err: diskFull}

	res, err := f.orch.GenerateForUser(context.Background(), 1, discover.MediaTypeMovie, Options{})
	if !errors.Is(err, diskFull) {
		t.Fatalf("GenerateForUser() error = %v, want wrapped disk full", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}

	if len(f.store.runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(f.store.runs))
	}
	for _, run := range f.store.runs {
		if run.Status != discover.RunStatusFailed || run.FinishedAt == nil {
			t.Errorf("stored run = %+v, want failed", run)
		}
		if run.Error == "" {
			t.Error("stored run carries no error message")
		}
	}
	types := f.events.types()
	if len(types) == 0 || types[len(types)-1] != events.TypeRunFailed {
		t.Errorf("event types = %v, want run failed last", types)
	}
}

func TestGenerateForUserFilterErrorFailsRun(t *testing.T) {
	f := newFixture(t, candidates(10), nil)
	f.store.historyErr = errors.New("db gone")

	if _, err := f.orch.GenerateForUser(context.Background(), 1, discover.MediaTypeMovie, Options{}); err == nil {
		t.Fatal("GenerateForUser() should fail when history cannot be loaded")
	}
	for _, run := range f.store.runs {
		if run.Status != discover.RunStatusFailed {
			t.Errorf("status = %s, want failed", run.Status)
		}
	}
}

func TestGenerateForUserInvalidMediaType(t *testing.T) {
	f := newFixture(t, candidates(1), nil)
	if _, err := f.orch.GenerateForUser(context.Background(), 1, "music", Options{}); !errors.Is(err, discover.ErrInvalidMediaType) {
		t.Errorf("error = %v, want ErrInvalidMediaType", err)
	}
	if len(f.store.runs) != 0 {
		t.Error("no run should be created for an invalid media type")
	}
}

func TestGenerateForAllUsers(t *testing.T) {
	f := newFixture(t, candidates(30), nil)
	f.store.users = []discover.User{
		{ID: 1, Username: "alice"},
		{ID: 2, Username: "bob", MediaTypes: []discover.MediaType{discover.MediaTypeSeries}},
		{ID: 3, Username: "carol", Weights: &discover.Weights{Rating: 1}},
	}
	f.store.tasteErr = errors.New("corrupt profile")
	f.store.failUser = 3

	var progress []Progress
	res, err := f.orch.GenerateForAllUsers(context.Background(), Options{
		Progress: func(p Progress) { progress = append(progress, p) },
	})
	if err != nil {
		t.Fatalf("GenerateForAllUsers() error = %v", err)
	}

	// alice: movie+series, bob: series, carol: movie+series (both failing)
	if res.Users != 3 || res.Runs != 5 || res.Completed != 3 || res.Failed != 2 {
		t.Errorf("batch = %+v", res)
	}
	if len(progress) != 5 || progress[4].Processed != 5 || progress[4].Total != 5 || progress[4].Failed != 2 {
		t.Errorf("progress = %+v", progress)
	}
	if res.PoolSizes[discover.MediaTypeMovie] != 30 {
		t.Errorf("PoolSizes = %v", res.PoolSizes)
	}

	// One global fetch per media type; units reuse it.
	if f.global.calls != 2 {
		t.Errorf("global fetches = %d, want 2", f.global.calls)
	}
}

func TestGenerateForAllUsersEmptyPool(t *testing.T) {
	f := newFixture(t, nil, personalPicks(5))
	f.store.users = []discover.User{{ID: 1}, {ID: 2}, {ID: 3}}

	res, err := f.orch.GenerateForAllUsers(context.Background(), Options{})
	if err != nil {
		t.Fatalf("GenerateForAllUsers() error = %v", err)
	}
	if res.Runs != 6 || res.Completed != 6 {
		t.Errorf("batch = %+v", res)
	}
	if f.global.calls != 2 {
		t.Errorf("global fetches = %d, want 2 (no per-user refetch of an empty pool)", f.global.calls)
	}
	for userID := int64(1); userID <= 3; userID++ {
		if len(f.store.results[userID]) != 5 {
			t.Errorf("user %d stored %d, want the 5 personalized picks", userID, len(f.store.results[userID]))
		}
	}
}

func TestGenerateForAllUsersCanceled(t *testing.T) {
	f := newFixture(t, candidates(5), nil)
	f.store.users = []discover.User{{ID: 1}, {ID: 2}}

	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	res, err := f.orch.GenerateForAllUsers(ctx, Options{
		Progress: func(Progress) {
			calls++
			cancel()
		},
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if calls != 1 || res.Runs != 1 {
		t.Errorf("calls = %d, runs = %d; want the batch to stop after the first unit", calls, res.Runs)
	}
}

func personalPicks(n int) []discover.RawCandidate {
	out := candidates(n)
	for i := range out {
		out[i].ExternalID += 1000
		out[i].Title = fmt.Sprintf("Pick %d", i+1)
		out[i].Source = "test_personal"
		out[i].SourceScore = 1 - float64(i)/float64(n)
	}
	return out
}

func TestExpand(t *testing.T) {
	f := newFixture(t, candidates(50), personalPicks(40))
	ctx := context.Background()

	if _, err := f.orch.GenerateForUser(ctx, 1, discover.MediaTypeMovie, Options{}); err != nil {
		t.Fatalf("GenerateForUser() error = %v", err)
	}
	stored, _ := f.store.StoredExternalIDs(ctx, 1, discover.MediaTypeMovie)
	callsBefore := f.global.calls
	runsBefore := len(f.store.runs)

	more, err := f.orch.Expand(ctx, 1, discover.MediaTypeMovie, Options{})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(more) != 10 {
		t.Errorf("len = %d, want TargetDisplayCount (10)", len(more))
	}
	for _, c := range more {
		if _, ok := stored[c.ExternalID]; ok {
			t.Errorf("Expand returned stored title %d", c.ExternalID)
		}
		if c.Source != "test_personal" {
			t.Errorf("Expand returned %d from %q, want personalized only", c.ExternalID, c.Source)
		}
	}
	if f.global.calls != callsBefore {
		t.Errorf("global fetches = %d, want %d; Expand must not query global sources", f.global.calls, callsBefore)
	}
	if len(f.store.runs) != runsBefore {
		t.Errorf("Expand must not create runs")
	}
}

func TestFilterPreservesOrder(t *testing.T) {
	store := newMemStore()
	store.watched[1] = map[int64]struct{}{2: {}}
	store.library[1] = map[int64]struct{}{4: {}}

	in := candidates(5)
	out, err := NewFilter(store, zerolog.Nop()).Apply(context.Background(), 1, discover.MediaTypeMovie, in)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	want := []int64{1, 3, 5}
	if len(out) != len(want) {
		t.Fatalf("len = %d, want %d", len(out), len(want))
	}
	for i := range want {
		if out[i].ExternalID != want[i] {
			t.Errorf("out[%d] = %d, want %d", i, out[i].ExternalID, want[i])
		}
	}
}
