package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// MemoryStore implements ports.Store in process memory. Rows carry an
// insertion sequence so that equal timestamps order the same way they do
// in SQLiteStore.
type MemoryStore struct {
	mu       sync.RWMutex
	seq      int64
	genomes  []memGenome
	events   []memEvent
	analyses []memAnalysis
}

type memGenome struct {
	seq int64
	g   domain.Genome
}

type memEvent struct {
	seq int64
	e   domain.Event
}

type memAnalysis struct {
	seq int64
	a   domain.AnalysisResult
}

var _ ports.Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// ActiveGenome returns the newest active row of lab.
func (m *MemoryStore) ActiveGenome(ctx context.Context, lab string) (domain.Genome, error) {
	if err := ctx.Err(); err != nil {
		return domain.Genome{}, ports.NewStoreError("genome", "active", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  memGenome
		found bool
	)
	for _, row := range m.genomes {
		if row.g.LabName != lab || !row.g.IsActive {
			continue
		}
		if !found || compareGenomes(row, best) > 0 {
			best, found = row, true
		}
	}
	if !found {
		return domain.Genome{}, ports.NewStoreError("genome", "active", fmt.Errorf("%s: %w", lab, domain.ErrGenomeNotFound))
	}
	return cloneGenome(best.g), nil
}

// Lineage returns every row of lab, oldest first.
func (m *MemoryStore) Lineage(ctx context.Context, lab string) ([]domain.Genome, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewStoreError("genome", "lineage", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := make([]memGenome, 0)
	for _, row := range m.genomes {
		if row.g.LabName == lab {
			rows = append(rows, row)
		}
	}
	slices.SortFunc(rows, compareGenomes)

	out := make([]domain.Genome, len(rows))
	for i, row := range rows {
		out[i] = cloneGenome(row.g)
	}
	return out, nil
}

// InsertGenome appends one genome row.
func (m *MemoryStore) InsertGenome(ctx context.Context, genome domain.Genome) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError("genome", "insert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkGenome(genome, nil); err != nil {
		return ports.NewStoreError("genome", "insert", err)
	}
	m.appendGenome(genome)
	return nil
}

// checkGenome rejects unknown labs and id or version collisions with the
// stored rows and with pending. Callers hold mu.
func (m *MemoryStore) checkGenome(g domain.Genome, pending []domain.Genome) error {
	if !domain.IsKnownLab(g.LabName) {
		return fmt.Errorf("%w: %q", domain.ErrUnknownLab, g.LabName)
	}
	collides := func(other domain.Genome) bool {
		return other.ID == g.ID || (other.LabName == g.LabName && other.Version == g.Version)
	}
	for _, row := range m.genomes {
		if collides(row.g) {
			return fmt.Errorf("%w: genome %s %s", ports.ErrConflict, g.LabName, g.Version)
		}
	}
	for _, other := range pending {
		if collides(other) {
			return fmt.Errorf("%w: genome %s %s", ports.ErrConflict, g.LabName, g.Version)
		}
	}
	return nil
}

func (m *MemoryStore) appendGenome(g domain.Genome) {
	m.seq++
	m.genomes = append(m.genomes, memGenome{seq: m.seq, g: cloneGenome(g)})
}

// CommitAnalysis validates every row before writing any of them.
func (m *MemoryStore) CommitAnalysis(ctx context.Context, result domain.AnalysisResult, genomes []domain.Genome) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError("analysis", "commit", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.analyses {
		if row.a.ID == result.ID {
			return ports.NewStoreError("analysis", "commit", fmt.Errorf("%w: analysis %s", ports.ErrConflict, result.ID))
		}
	}
	for i, g := range genomes {
		if err := m.checkGenome(g, genomes[:i]); err != nil {
			return ports.NewStoreError("genome", "commit", err)
		}
	}

	m.seq++
	m.analyses = append(m.analyses, memAnalysis{seq: m.seq, a: cloneAnalysis(result)})
	for _, g := range genomes {
		m.appendGenome(g)
	}
	return nil
}

// GetAnalysis returns the analysis with id.
func (m *MemoryStore) GetAnalysis(ctx context.Context, id string) (domain.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AnalysisResult{}, ports.NewStoreError("analysis", "get", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.analyses {
		if row.a.ID == id {
			return cloneAnalysis(row.a), nil
		}
	}
	return domain.AnalysisResult{}, ports.NewStoreError("analysis", "get", fmt.Errorf("%s: %w", id, domain.ErrAnalysisNotFound))
}

// LatestAnalysisForEvent returns the newest analysis of eventID.
func (m *MemoryStore) LatestAnalysisForEvent(ctx context.Context, eventID string) (domain.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.AnalysisResult{}, ports.NewStoreError("analysis", "latest", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  memAnalysis
		found bool
	)
	for _, row := range m.analyses {
		if row.a.EventID != eventID {
			continue
		}
		if !found || compareAnalyses(row, best) > 0 {
			best, found = row, true
		}
	}
	if !found {
		return domain.AnalysisResult{}, ports.NewStoreError("analysis", "latest", fmt.Errorf("%s: %w", eventID, domain.ErrAnalysisNotFound))
	}
	return cloneAnalysis(best.a), nil
}

// ListAnalyses returns up to limit analyses, newest first.
func (m *MemoryStore) ListAnalyses(ctx context.Context, limit int) ([]domain.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewStoreError("analysis", "list", err)
	}
	m.mu.RLock()
	rows := slices.Clone(m.analyses)
	m.mu.RUnlock()

	slices.SortFunc(rows, func(a, b memAnalysis) int { return compareAnalyses(b, a) })
	rows = truncate(rows, limit)

	out := make([]domain.AnalysisResult, len(rows))
	for i, row := range rows {
		out[i] = cloneAnalysis(row.a)
	}
	return out, nil
}

// SaveEvent stores event. Its id must be unique.
func (m *MemoryStore) SaveEvent(ctx context.Context, event domain.Event) error {
	if err := ctx.Err(); err != nil {
		return ports.NewStoreError("event", "save", err)
	}
	if event.ID == "" {
		return ports.NewStoreError("event", "save", fmt.Errorf("%w: event id is required", domain.ErrInvalidState))
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range m.events {
		if row.e.ID == event.ID {
			return ports.NewStoreError("event", "save", fmt.Errorf("%w: event %s", ports.ErrConflict, event.ID))
		}
	}
	m.seq++
	m.events = append(m.events, memEvent{seq: m.seq, e: cloneEvent(event)})
	return nil
}

// GetEvent returns the event with id.
func (m *MemoryStore) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return domain.Event{}, ports.NewStoreError("event", "get", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, row := range m.events {
		if row.e.ID == id {
			return cloneEvent(row.e), nil
		}
	}
	return domain.Event{}, ports.NewStoreError("event", "get", fmt.Errorf("%s: %w", id, domain.ErrEventNotFound))
}

// ListEvents returns up to limit events, newest first.
func (m *MemoryStore) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, ports.NewStoreError("event", "list", err)
	}
	m.mu.RLock()
	rows := slices.Clone(m.events)
	m.mu.RUnlock()

	slices.SortFunc(rows, func(a, b memEvent) int {
		return cmp.Or(b.e.CreatedAt.Compare(a.e.CreatedAt), cmp.Compare(b.seq, a.seq))
	})
	rows = truncate(rows, limit)

	out := make([]domain.Event, len(rows))
	for i, row := range rows {
		out[i] = cloneEvent(row.e)
	}
	return out, nil
}

// compareGenomes orders rows by creation time, then insertion.
func compareGenomes(a, b memGenome) int {
	return cmp.Or(a.g.CreatedAt.Compare(b.g.CreatedAt), cmp.Compare(a.seq, b.seq))
}

func compareAnalyses(a, b memAnalysis) int {
	return cmp.Or(a.a.CreatedAt.Compare(b.a.CreatedAt), cmp.Compare(a.seq, b.seq))
}

func truncate[T any](rows []T, limit int) []T {
	if limit > 0 && len(rows) > limit {
		return rows[:limit]
	}
	return rows
}

func cloneGenome(g domain.Genome) domain.Genome {
	out := g
	out.Data = g.Data.Clone()
	if g.ParentVersion != nil {
		p := *g.ParentVersion
		out.ParentVersion = &p
	}
	return out
}

func cloneEvent(e domain.Event) domain.Event {
	out := e
	if e.EgoSpeedMPS != nil {
		v := *e.EgoSpeedMPS
		out.EgoSpeedMPS = &v
	}
	if e.LeadDistanceM != nil {
		v := *e.LeadDistanceM
		out.LeadDistanceM = &v
	}
	return out
}

// cloneAnalysis copies the genome payloads, the only part of a result
// callers are expected to mutate.
func cloneAnalysis(a domain.AnalysisResult) domain.AnalysisResult {
	out := a
	for _, u := range []*domain.GenomeUpdate{&out.SafetyUpdate, &out.PerformanceUpdate} {
		if u.NewGenomeData != nil {
			data := u.NewGenomeData.Clone()
			u.NewGenomeData = &data
		}
	}
	return out
}
