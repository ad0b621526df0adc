package units

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/ahrav/go-autolab/internal/domain"
	"github.com/ahrav/go-autolab/internal/ports"
)

var _ ports.Unit = (*RetrieverUnit)(nil)

// Retrieval limits.
const (
	// MaxRetrievedPapers is the hard cap on papers per lab per run.
	MaxRetrievedPapers = 10

	// DefaultVenueWeight scores papers from venues the genome does not list.
	DefaultVenueWeight = 0.5
)

// RetrieverConfig configures the RetrieverUnit.
type RetrieverConfig struct {
	// MaxResults truncates the ranked list. It never exceeds MaxRetrievedPapers.
	MaxResults int `yaml:"max_results" json:"max_results" validate:"min=1,max=10"`
}

// RetrieverUnit ranks the lab catalog against the genome retrieval
// preferences. It reads KeyLabName, KeyGenome and KeyResearchPlan and
// writes KeyPapers. Retrieval is deterministic and never consults the
// text generator.
type RetrieverUnit struct {
	name    string
	config  RetrieverConfig
	catalog ports.Catalog
}

// NewRetrieverUnit creates a RetrieverUnit over catalog.
func NewRetrieverUnit(name string, catalog ports.Catalog, config RetrieverConfig) (*RetrieverUnit, error) {
	if name == "" {
		return nil, ErrEmptyUnitName
	}
	if catalog == nil {
		return nil, fmt.Errorf("catalog cannot be nil")
	}
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &RetrieverUnit{name: name, config: config, catalog: catalog}, nil
}

// Name returns the unit identifier.
func (u *RetrieverUnit) Name() string { return u.name }

// Execute filters, scores and ranks the lab catalog. A missing or empty
// catalog is an infrastructure failure and is returned as an error.
func (u *RetrieverUnit) Execute(_ context.Context, state domain.State) (domain.State, error) {
	lab, ok := domain.Get(state, domain.KeyLabName)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyLabName, u.name)
	}
	genome, ok := domain.Get(state, domain.KeyGenome)
	if !ok {
		return state, domain.MissingKeyError(domain.KeyGenome, u.name)
	}
	if _, ok := domain.Get(state, domain.KeyResearchPlan); !ok {
		return state, domain.MissingKeyError(domain.KeyResearchPlan, u.name)
	}

	catalog, err := u.catalog.Papers(lab)
	if err != nil {
		return state, fmt.Errorf("unit %s: catalog for %s: %w", u.name, lab, err)
	}
	if len(catalog) == 0 {
		return state, fmt.Errorf("unit %s: %s: %w", u.name, lab, ports.ErrEmptyCatalog)
	}

	papers := RankPapers(catalog, genome.RetrievalPreferences, u.config.MaxResults)
	return domain.With(state, domain.KeyPapers, papers), nil
}

// Validate checks the unit configuration.
func (u *RetrieverUnit) Validate() error {
	if u.catalog == nil {
		return fmt.Errorf("unit %s: catalog is not configured", u.name)
	}
	if err := validate.Struct(u.config); err != nil {
		return fmt.Errorf("unit %s: %w", u.name, err)
	}
	return nil
}

// RankPapers keeps the papers published inside the preferred year window,
// scores each by its venue weight, stable-sorts them by descending score
// and returns at most limit of them. Equal scores keep catalog order. The
// input slice is not modified.
func RankPapers(catalog []domain.Paper, prefs domain.RetrievalPreferences, limit int) []domain.Paper {
	if limit <= 0 || limit > MaxRetrievedPapers {
		limit = MaxRetrievedPapers
	}

	ranked := make([]domain.Paper, 0, len(catalog))
	for _, p := range catalog {
		if !prefs.YearRange.Contains(p.Year) {
			continue
		}
		score, ok := prefs.VenueWeights[p.Venue]
		if !ok {
			score = DefaultVenueWeight
		}
		p.RelevanceScore = score
		ranked = append(ranked, p)
	}

	slices.SortStableFunc(ranked, func(a, b domain.Paper) int {
		return cmp.Compare(b.RelevanceScore, a.RelevanceScore)
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// CreateRetrieverUnit is the registry factory for RetrieverUnit.
func CreateRetrieverUnit(id string, config map[string]any) (*RetrieverUnit, error) {
	catalog, ok := config[ConfigKeyCatalog].(ports.Catalog)
	if !ok {
		return nil, fmt.Errorf("%s is required and must implement ports.Catalog", ConfigKeyCatalog)
	}
	cfg := RetrieverConfig{MaxResults: MaxRetrievedPapers}
	if err := decodeParams(config, &cfg); err != nil {
		return nil, err
	}
	return NewRetrieverUnit(id, catalog, cfg)
}
