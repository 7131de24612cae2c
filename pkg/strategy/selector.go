package strategy

import (
	"math"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/monitor"
	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
)

var selectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "instantly_strategy_selections_total",
		Help: "Total number of strategy decisions by resulting strategy and source",
	},
	[]string{"strategy", "source"},
)

// Sources of a strategy decision.
const (
	SourcePinned = "pinned"
	SourceCustom = "custom"
	SourceAuto   = "auto"
)

// SizeClass classifies the expected collection size.
type SizeClass string

const (
	SizeUnknown    SizeClass = "unknown"
	SizeSmall      SizeClass = "small"
	SizeMedium     SizeClass = "medium"
	SizeLarge      SizeClass = "large"
	SizeEnterprise SizeClass = "enterprise"
)

// ClassifyWorkspace maps an item-count hint to a size class. Hints of zero
// or less mean nothing is known.
func ClassifyWorkspace(hint int) SizeClass {
	switch {
	case hint <= 0:
		return SizeUnknown
	case hint <= 100:
		return SizeSmall
	case hint <= 500:
		return SizeMedium
	case hint <= 1000:
		return SizeLarge
	default:
		return SizeEnterprise
	}
}

// Strain is the composite pressure signal. Higher is more conservative.
type Strain int

const (
	StrainNone Strain = iota
	StrainModerate
	StrainHigh
)

func (s Strain) String() string {
	switch s {
	case StrainNone:
		return "none"
	case StrainModerate:
		return "moderate"
	default:
		return "high"
	}
}

// HistoryThresholds decide when recent performance counts as strain. Any
// rate limit hit in the history counts as strain as well.
type HistoryThresholds struct {
	SlowLatency time.Duration
	ErrorRate   float64
}

// DefaultHistoryThresholds returns the built-in latency and error limits.
func DefaultHistoryThresholds() HistoryThresholds {
	return HistoryThresholds{
		SlowLatency: 2 * time.Second,
		ErrorRate:   0.05,
	}
}

// tightBudget marks client budgets that warrant caution even when nothing
// else indicates strain.
const tightBudget = 20 * time.Second

// Input carries every signal a decision is made from.
type Input struct {
	Operation pagination.Operation
	Client    clientprofile.Profile

	// SizeHint is the expected number of items; zero when unknown.
	SizeHint int

	// SizeLowerBound marks SizeHint as a minimum rather than a count. A lower
	// bound never classifies a workspace as small.
	SizeLowerBound bool

	History monitor.Stats

	// Pinned names a predefined tier to use verbatim.
	Pinned string

	// Custom is a caller-supplied profile used verbatim. It wins over Pinned.
	Custom *Profile
}

// Selector turns signals into a strategy profile.
type Selector struct {
	thresholds HistoryThresholds
	logger     zerolog.Logger
}

// NewSelector creates a selector with the given history thresholds.
func NewSelector(thresholds HistoryThresholds, logger zerolog.Logger) *Selector {
	return &Selector{thresholds: thresholds, logger: logger}
}

// Select returns the strategy for one retrieval.
//
// Pinned and custom profiles are validated and returned unchanged. Otherwise
// the tier follows the strongest strain signal, is tuned for the operation
// and finally capped by the client's page ceiling and usable budget. A large
// workspace or any sign of trouble in the history selects the conservative
// tier outright; an unknown or medium size and a tight client budget only
// step down to balanced.
func (s *Selector) Select(in Input) (Profile, error) {
	if in.Custom != nil {
		p := *in.Custom
		if p.Name == "" {
			p.Name = Custom
		}
		if err := p.Validate(); err != nil {
			return Profile{}, err
		}
		s.record(in, p, SourceCustom, StrainNone)
		return p, nil
	}

	if strings.TrimSpace(in.Pinned) != "" {
		p, err := Tier(in.Pinned)
		if err != nil {
			return Profile{}, err
		}
		s.record(in, p, SourcePinned, StrainNone)
		return p, nil
	}

	strain := max(sizeStrain(classify(in)), s.historyStrain(in.History), clientStrain(in.Client))
	p := tierFor(strain)
	p = tuneForOperation(p, in.Operation)
	p = capForClient(p, in.Client)

	s.record(in, p, SourceAuto, strain)
	return p, nil
}

func (s *Selector) record(in Input, p Profile, source string, strain Strain) {
	selectionsTotal.WithLabelValues(p.Name, source).Inc()

	s.logger.Debug().
		Str("operation", string(in.Operation)).
		Str("client_profile", in.Client.Name).
		Str("strategy", p.Name).
		Str("source", source).
		Str("strain", strain.String()).
		Int("size_hint", in.SizeHint).
		Int("max_pages", p.MaxPages).
		Int("batch_size", p.BatchSize).
		Dur("request_timeout", p.RequestTimeout).
		Msg("Strategy selected")
}

func classify(in Input) SizeClass {
	class := ClassifyWorkspace(in.SizeHint)
	if in.SizeLowerBound && class == SizeSmall {
		return SizeMedium
	}
	return class
}

func sizeStrain(class SizeClass) Strain {
	switch class {
	case SizeSmall:
		return StrainNone
	case SizeLarge, SizeEnterprise:
		return StrainHigh
	default:
		return StrainModerate
	}
}

func (s *Selector) historyStrain(st monitor.Stats) Strain {
	if st.Samples == 0 {
		return StrainNone
	}
	th := s.thresholds
	if st.AvgLatency > th.SlowLatency || st.ErrorRate > th.ErrorRate || st.RateLimitHits > 0 {
		return StrainHigh
	}
	return StrainNone
}

func clientStrain(client clientprofile.Profile) Strain {
	if client.UsableBudget() < tightBudget {
		return StrainModerate
	}
	return StrainNone
}

func tierFor(strain Strain) Profile {
	switch strain {
	case StrainNone:
		return tiers[Complete]
	case StrainModerate:
		return tiers[Balanced]
	default:
		return tiers[Conservative]
	}
}

// tuneForOperation scales page size up for collections that tend to be
// large and down for small ones. Only the two widest tiers also get more
// time per request.
func tuneForOperation(p Profile, op pagination.Operation) Profile {
	switch op {
	case pagination.OpLeads, pagination.OpEmails:
		p.BatchSize = pagination.ClampBatchSize(p.BatchSize * 2)
		if p.Name == Complete || p.Name == Enterprise {
			p.RequestTimeout = time.Duration(float64(p.RequestTimeout) * 1.5)
		}
	case pagination.OpAccounts, pagination.OpCampaigns:
		p.BatchSize = pagination.ClampBatchSize(int(math.Round(float64(p.BatchSize) * 0.8)))
	}
	return p
}

func capForClient(p Profile, client clientprofile.Profile) Profile {
	if client.MaxPages > 0 && p.MaxPages > client.MaxPages {
		p.MaxPages = client.MaxPages
	}
	if budget := client.UsableBudget(); budget > 0 && p.RequestTimeout > budget {
		p.RequestTimeout = budget
	}
	return p
}
