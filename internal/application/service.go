package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

// AnalysisService owns the run lifecycle: it loads or seeds the active
// genomes, runs the Orchestrator and commits the analysis together with
// every evolved genome.
type AnalysisService struct {
	store        ports.Store
	orchestrator *Orchestrator
	logger       *zap.Logger
	metrics      ports.MetricsCollector
	validate     *validator.Validate
	timeout      time.Duration
	now          func() time.Time
	newID        func() string

	// labLocks are always taken in domain.LabNames order.
	labLocks map[string]*sync.Mutex
}

// ServiceOption configures an AnalysisService.
type ServiceOption func(*AnalysisService)

// WithServiceLogger sets the service logger.
func WithServiceLogger(logger *zap.Logger) ServiceOption {
	return func(s *AnalysisService) { s.logger = logger }
}

// WithServiceMetrics sets the collector run metrics are recorded on.
func WithServiceMetrics(metrics ports.MetricsCollector) ServiceOption {
	return func(s *AnalysisService) { s.metrics = metrics }
}

// WithAnalysisTimeout bounds every Analyze call. Zero disables the bound.
func WithAnalysisTimeout(timeout time.Duration) ServiceOption {
	return func(s *AnalysisService) { s.timeout = timeout }
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *AnalysisService) { s.now = now }
}

// WithIDGenerator replaces the uuid generator, mostly for tests.
func WithIDGenerator(newID func() string) ServiceOption {
	return func(s *AnalysisService) { s.newID = newID }
}

// NewAnalysisService creates a service over store and orchestrator.
func NewAnalysisService(store ports.Store, orchestrator *Orchestrator, opts ...ServiceOption) (*AnalysisService, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store cannot be nil", domain.ErrInvalidConfiguration)
	}
	if orchestrator == nil {
		return nil, fmt.Errorf("%w: orchestrator cannot be nil", domain.ErrInvalidConfiguration)
	}

	s := &AnalysisService{
		store:        store,
		orchestrator: orchestrator,
		logger:       zap.NewNop(),
		validate:     validator.New(),
		now:          time.Now,
		newID:        uuid.NewString,
		labLocks:     make(map[string]*sync.Mutex, len(domain.LabNames)),
	}
	for _, lab := range domain.LabNames {
		s.labLocks[lab] = &sync.Mutex{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// EnsureSeeds inserts the v0.1 genome of every lab that has none yet.
func (s *AnalysisService) EnsureSeeds(ctx context.Context) error {
	unlock := s.lockLabs()
	defer unlock()

	for _, lab := range domain.LabNames {
		if _, err := s.activeGenome(ctx, lab); err != nil {
			return err
		}
	}
	return nil
}

// SubmitEvent validates event, assigns an id when it has none and stores it.
func (s *AnalysisService) SubmitEvent(ctx context.Context, event domain.Event) (domain.Event, error) {
	if err := s.validateEvent(event); err != nil {
		return domain.Event{}, err
	}
	if event.ID == "" {
		event.ID = s.newID()
	}
	if event.Severity == "" {
		event.Severity = domain.SeverityMedium
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now().UTC()
	}
	if err := s.store.SaveEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

// GetEvent returns a stored event.
func (s *AnalysisService) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return s.store.GetEvent(ctx, id)
}

// ListEvents returns up to limit stored events, newest first.
func (s *AnalysisService) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	return s.store.ListEvents(ctx, limit)
}

// AnalyzeEvent loads the stored event eventID and analyzes it.
func (s *AnalysisService) AnalyzeEvent(ctx context.Context, eventID string) (domain.AnalysisResult, error) {
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return domain.AnalysisResult{}, err
	}
	return s.Analyze(ctx, event)
}

// Analyze runs both labs on event, judges them, evolves the genomes and
// commits everything in one transaction. An event without an id is
// stored first.
func (s *AnalysisService) Analyze(ctx context.Context, event domain.Event) (domain.AnalysisResult, error) {
	if event.ID == "" {
		stored, err := s.SubmitEvent(ctx, event)
		if err != nil {
			return domain.AnalysisResult{}, err
		}
		event = stored
	} else if err := s.validateEvent(event); err != nil {
		return domain.AnalysisResult{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	unlock := s.lockLabs()
	defer unlock()

	genomes := make(map[string]domain.Genome, len(domain.LabNames))
	for _, lab := range domain.LabNames {
		genome, err := s.activeGenome(ctx, lab)
		if err != nil {
			return domain.AnalysisResult{}, err
		}
		genomes[lab] = genome
	}

	s.logger.Info("starting analysis",
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.EffectiveSeverity())),
		zap.String("safety_version", genomes[domain.SafetyLab].Version),
		zap.String("performance_version", genomes[domain.PerformanceLab].Version),
	)

	run, err := s.orchestrator.Run(ctx, event, genomes)
	if err != nil {
		s.logger.Error("analysis failed", zap.String("event_id", event.ID), zap.Error(err))
		return domain.AnalysisResult{}, fmt.Errorf("analysis of event %s failed: %w", event.ID, err)
	}

	now := s.now().UTC()
	var evolved []domain.Genome
	safetyUpdate, row := s.evolvedRow(genomes[domain.SafetyLab], run.SafetyUpdate, now)
	if row != nil {
		evolved = append(evolved, *row)
	}
	performanceUpdate, row := s.evolvedRow(genomes[domain.PerformanceLab], run.PerformanceUpdate, now)
	if row != nil {
		evolved = append(evolved, *row)
	}

	result := domain.AnalysisResult{
		ID:                       s.newID(),
		EventID:                  event.ID,
		SafetyOutput:             run.Safety,
		PerformanceOutput:        run.Performance,
		Decision:                 run.Decision,
		SafetyUpdate:             safetyUpdate,
		PerformanceUpdate:        performanceUpdate,
		SafetyGenomeVersion:      genomes[domain.SafetyLab].Version,
		PerformanceGenomeVersion: genomes[domain.PerformanceLab].Version,
		DurationSeconds:          run.Duration.Seconds(),
		CreatedAt:                now,
	}

	if err := s.store.CommitAnalysis(ctx, result, evolved); err != nil {
		return domain.AnalysisResult{}, fmt.Errorf("failed to commit analysis of event %s: %w", event.ID, err)
	}

	s.record(result, evolved, run.Duration)
	s.logger.Info("analysis complete",
		zap.String("analysis_id", result.ID),
		zap.String("event_id", event.ID),
		zap.String("winner", string(result.Decision.Winner)),
		zap.Int("genomes_evolved", len(evolved)),
		zap.Duration("duration", run.Duration),
	)
	return result, nil
}

// GetAnalysis returns a stored analysis.
func (s *AnalysisService) GetAnalysis(ctx context.Context, id string) (domain.AnalysisResult, error) {
	return s.store.GetAnalysis(ctx, id)
}

// LatestAnalysisForEvent returns the newest analysis of eventID.
func (s *AnalysisService) LatestAnalysisForEvent(ctx context.Context, eventID string) (domain.AnalysisResult, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return domain.AnalysisResult{}, err
	}
	return s.store.LatestAnalysisForEvent(ctx, eventID)
}

// ListAnalyses returns up to limit analyses, newest first.
func (s *AnalysisService) ListAnalyses(ctx context.Context, limit int) ([]domain.AnalysisResult, error) {
	return s.store.ListAnalyses(ctx, limit)
}

// Lineage returns every genome of lab, oldest first.
func (s *AnalysisService) Lineage(ctx context.Context, lab string) ([]domain.Genome, error) {
	if !domain.IsKnownLab(lab) {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownLab, lab)
	}
	return s.store.Lineage(ctx, lab)
}

// Lineages returns the lineage of both labs keyed by lab name.
func (s *AnalysisService) Lineages(ctx context.Context) (map[string][]domain.Genome, error) {
	out := make(map[string][]domain.Genome, len(domain.LabNames))
	for _, lab := range domain.LabNames {
		rows, err := s.Lineage(ctx, lab)
		if err != nil {
			return nil, err
		}
		out[lab] = rows
	}
	return out, nil
}

func (s *AnalysisService) validateEvent(event domain.Event) error {
	if err := s.validate.Struct(event); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, err)
	}
	if err := event.Validate(); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrInvalidState, err)
	}
	return nil
}

// lockLabs acquires every lab mutex in fixed order and returns the release
// function.
func (s *AnalysisService) lockLabs() func() {
	for _, lab := range domain.LabNames {
		s.labLocks[lab].Lock()
	}
	return func() {
		for i := len(domain.LabNames) - 1; i >= 0; i-- {
			s.labLocks[domain.LabNames[i]].Unlock()
		}
	}
}

// activeGenome loads the active genome of lab, seeding v0.1 when the lab
// has no rows yet. Callers hold the lab lock.
func (s *AnalysisService) activeGenome(ctx context.Context, lab string) (domain.Genome, error) {
	genome, err := s.store.ActiveGenome(ctx, lab)
	if err == nil {
		return genome, nil
	}
	if !errors.Is(err, domain.ErrGenomeNotFound) {
		return domain.Genome{}, err
	}

	data, err := SeedGenomeData(lab)
	if err != nil {
		return domain.Genome{}, err
	}
	genome = domain.Genome{
		ID:                s.newID(),
		LabName:           lab,
		Version:           domain.InitialVersion,
		Data:              data,
		ChangeDescription: SeedChangeDescription(lab),
		IsActive:          true,
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.InsertGenome(ctx, genome); err != nil {
		return domain.Genome{}, fmt.Errorf("failed to seed genome for %s: %w", lab, err)
	}
	s.logger.Info("seeded genome", zap.String("lab", lab), zap.String("version", genome.Version))
	return genome, nil
}

// evolvedRow turns an update into the next genome row of current's
// lineage. It returns a nil row when the genome did not change.
func (s *AnalysisService) evolvedRow(
	current domain.Genome,
	update domain.GenomeUpdate,
	now time.Time,
) (domain.GenomeUpdate, *domain.Genome) {
	if !update.Updated || update.NewGenomeData == nil {
		return update, nil
	}
	parent := current.Version
	row := domain.Genome{
		ID:                s.newID(),
		LabName:           current.LabName,
		Version:           domain.BumpVersion(current.Version),
		ParentVersion:     &parent,
		Data:              update.NewGenomeData.Clone(),
		ChangeDescription: update.Changes,
		IsActive:          true,
		CreatedAt:         now,
	}
	update.NewVersion = row.Version
	update.ParentVersion = parent
	return update, &row
}

func (s *AnalysisService) record(result domain.AnalysisResult, evolved []domain.Genome, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	winner := map[string]string{"winner": string(result.Decision.Winner)}
	s.metrics.RecordCounter(ports.MetricAnalysesTotal, 1, winner)
	s.metrics.RecordLatency(ports.MetricAnalysisDuration, duration, winner)
	for _, lab := range domain.LabNames {
		s.metrics.RecordGauge(ports.MetricLabScore, result.Decision.ScoreFor(lab), map[string]string{"lab": lab})
	}
	for _, row := range evolved {
		s.metrics.RecordCounter(ports.MetricGenomeEvolutions, 1, map[string]string{"lab": row.LabName})
	}
}
