package clientprofile

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

var detectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "instantly_client_profile_detections_total",
	Help: "Client profile detections by resolved profile",
}, []string{"profile"})

// Detector caches the profile of the current session. Updates replace the
// cached profile; the last writer wins.
type Detector struct {
	table   Table
	current atomic.Pointer[Profile]
	logger  zerolog.Logger
}

// NewDetector creates a detector over the given table.
func NewDetector(table Table, logger zerolog.Logger) *Detector {
	return &Detector{
		table:  table,
		logger: logger,
	}
}

// Table returns the detector's profile table.
func (d *Detector) Table() Table {
	return d.table
}

// UpdateClientInfo detects a profile and replaces the cached one.
func (d *Detector) UpdateClientInfo(declaredName, agentString string) Profile {
	p := d.table.Detect(declaredName, agentString)
	d.current.Store(&p)

	detectionsTotal.WithLabelValues(p.Name).Inc()
	d.logger.Info().
		Str("declared_name", declaredName).
		Str("agent", agentString).
		Str("client_profile", p.Name).
		Dur("usable_budget", p.UsableBudget()).
		Int("max_pages", p.MaxPages).
		Msg("Client profile detected")

	return p
}

// ObserveAgent detects from an agent string only if no profile was detected
// yet. Later signals never override an earlier detection through this path.
func (d *Detector) ObserveAgent(agentString string) Profile {
	if p := d.current.Load(); p != nil {
		return *p
	}
	if agentString == "" {
		return d.table.Fallback()
	}

	p := d.table.Detect("", agentString)
	if !d.current.CompareAndSwap(nil, &p) {
		return *d.current.Load()
	}

	detectionsTotal.WithLabelValues(p.Name).Inc()
	d.logger.Info().
		Str("agent", agentString).
		Str("client_profile", p.Name).
		Msg("Client profile detected from agent string")
	return p
}

// Detected reports whether any update happened.
func (d *Detector) Detected() bool {
	return d.current.Load() != nil
}

// Current returns the cached profile, or the fallback before detection.
func (d *Detector) Current() Profile {
	if p := d.current.Load(); p != nil {
		return *p
	}
	return d.table.Fallback()
}
