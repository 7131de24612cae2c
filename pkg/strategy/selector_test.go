package strategy

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/instantly-mcp/pkg/clientprofile"
	"github.com/Sternrassler/instantly-mcp/pkg/monitor"
	"github.com/Sternrassler/instantly-mcp/pkg/pagination"
)

func newTestSelector() *Selector {
	return NewSelector(DefaultHistoryThresholds(), zerolog.Nop())
}

func clientProfile(t *testing.T, name string) clientprofile.Profile {
	t.Helper()
	p, ok := clientprofile.DefaultTable().Profiles[name]
	if !ok {
		t.Fatalf("no default client profile %q", name)
	}
	return p
}

func TestClassifyWorkspace(t *testing.T) {
	tests := []struct {
		hint int
		want SizeClass
	}{
		{0, SizeUnknown},
		{-5, SizeUnknown},
		{1, SizeSmall},
		{100, SizeSmall},
		{101, SizeMedium},
		{500, SizeMedium},
		{501, SizeLarge},
		{1000, SizeLarge},
		{1001, SizeEnterprise},
		{250000, SizeEnterprise},
	}

	for _, tt := range tests {
		if got := ClassifyWorkspace(tt.hint); got != tt.want {
			t.Errorf("ClassifyWorkspace(%d) = %q, want %q", tt.hint, got, tt.want)
		}
	}
}

// Unknown client and a 1000-item workspace must get the smallest page
// ceiling and shortest timeout of all tiers.
func TestSelect_UnknownClientLargeWorkspace(t *testing.T) {
	sel := newTestSelector()
	client := clientprofile.Detect("", "")

	minPages, minTimeout := 0, time.Duration(0)
	for _, tier := range Tiers() {
		if minPages == 0 || tier.MaxPages < minPages {
			minPages = tier.MaxPages
		}
		if minTimeout == 0 || tier.RequestTimeout < minTimeout {
			minTimeout = tier.RequestTimeout
		}
	}

	for _, op := range pagination.Operations() {
		got, err := sel.Select(Input{Operation: op, Client: client, SizeHint: 1000})
		if err != nil {
			t.Fatalf("%s: Select() error = %v", op, err)
		}
		if got.MaxPages != minPages {
			t.Errorf("%s: MaxPages = %d, want %d", op, got.MaxPages, minPages)
		}
		if got.RequestTimeout != minTimeout {
			t.Errorf("%s: RequestTimeout = %v, want %v", op, got.RequestTimeout, minTimeout)
		}
		if got.Name != Conservative {
			t.Errorf("%s: Name = %q, want %q", op, got.Name, Conservative)
		}
	}
}

// Worsening either signal never yields more pages or a longer timeout.
func TestSelect_MonotonicInStrain(t *testing.T) {
	sel := newTestSelector()
	hints := []int{50, 0, 300, 800, 5000}
	histories := []monitor.Stats{
		{},
		{Samples: 3, Calls: 10, AvgLatency: 500 * time.Millisecond},
		{Samples: 3, Calls: 10, AvgLatency: 3 * time.Second},
		{Samples: 3, Calls: 10, AvgLatency: 500 * time.Millisecond, ErrorRate: 0.1},
		{Samples: 3, Calls: 10, AvgLatency: 6 * time.Second, ErrorRate: 0.3},
	}
	clients := []string{clientprofile.ProfileGenerous, clientprofile.ProfileModerate, clientprofile.ProfileStrict}

	for _, op := range pagination.Operations() {
		for _, name := range clients {
			client := clientProfile(t, name)

			for h := range histories {
				prev := Profile{MaxPages: MaxPages + 1, RequestTimeout: MaxRequestTimeout + 1}
				for _, hint := range hints {
					got, err := sel.Select(Input{Operation: op, Client: client, SizeHint: hint, History: histories[h]})
					if err != nil {
						t.Fatalf("Select() error = %v", err)
					}
					if got.MaxPages > prev.MaxPages || got.RequestTimeout > prev.RequestTimeout {
						t.Errorf("%s/%s/history %d: hint %d loosened strategy %+v after %+v", op, name, h, hint, got, prev)
					}
					prev = got
				}
			}

			for _, hint := range hints {
				prev := Profile{MaxPages: MaxPages + 1, RequestTimeout: MaxRequestTimeout + 1}
				for h := range histories {
					got, err := sel.Select(Input{Operation: op, Client: client, SizeHint: hint, History: histories[h]})
					if err != nil {
						t.Fatalf("Select() error = %v", err)
					}
					if got.MaxPages > prev.MaxPages || got.RequestTimeout > prev.RequestTimeout {
						t.Errorf("%s/%s/hint %d: history %d loosened strategy %+v after %+v", op, name, hint, h, got, prev)
					}
					prev = got
				}
			}
		}
	}
}

func TestSelect_HistoryStrainWins(t *testing.T) {
	sel := newTestSelector()
	client := clientProfile(t, clientprofile.ProfileGenerous)

	calm, err := sel.Select(Input{Operation: pagination.OpCampaigns, Client: client, SizeHint: 40})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if calm.Name != Complete {
		t.Errorf("small workspace, generous client: Name = %q, want %q", calm.Name, Complete)
	}

	tests := []struct {
		name    string
		history monitor.Stats
		want    string
	}{
		{"healthy", monitor.Stats{Samples: 1, Calls: 4, AvgLatency: time.Second, ErrorRate: 0.05}, Complete},
		{"slow", monitor.Stats{Samples: 1, Calls: 4, AvgLatency: 3 * time.Second}, Conservative},
		{"rate limited", monitor.Stats{Samples: 1, Calls: 4, RateLimitHits: 1}, Conservative},
		{"some errors", monitor.Stats{Samples: 1, Calls: 10, ErrorRate: 0.1}, Conservative},
		{"erroring", monitor.Stats{Samples: 1, Calls: 4, ErrorRate: 0.25}, Conservative},
		{"very slow", monitor.Stats{Samples: 1, Calls: 4, AvgLatency: 8 * time.Second}, Conservative},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sel.Select(Input{Operation: pagination.OpCampaigns, Client: client, SizeHint: 40, History: tt.history})
			if err != nil {
				t.Fatalf("Select() error = %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("Name = %q, want %q", got.Name, tt.want)
			}
		})
	}
}

// A remembered lower bound from a partial walk must not look like a small
// workspace: a lower bound only ever tightens the choice made without it.
func TestSelect_LowerBoundHint(t *testing.T) {
	sel := newTestSelector()
	client := clientProfile(t, clientprofile.ProfileGenerous)

	unknown, err := sel.Select(Input{Operation: pagination.OpAccounts, Client: client})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}

	tests := []struct {
		hint int
		want string
	}{
		{81, Balanced},
		{400, Balanced},
		{900, Conservative},
		{50000, Conservative},
	}

	for _, tt := range tests {
		got, err := sel.Select(Input{Operation: pagination.OpAccounts, Client: client, SizeHint: tt.hint, SizeLowerBound: true})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Name != tt.want {
			t.Errorf("lower bound %d: Name = %q, want %q", tt.hint, got.Name, tt.want)
		}
		if got.MaxPages > unknown.MaxPages || got.RequestTimeout > unknown.RequestTimeout {
			t.Errorf("lower bound %d loosened %+v beyond the unknown-size choice %+v", tt.hint, got, unknown)
		}
	}

	exact, err := sel.Select(Input{Operation: pagination.OpAccounts, Client: client, SizeHint: 81})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if exact.Name != Complete {
		t.Errorf("exact 81: Name = %q, want %q", exact.Name, Complete)
	}
}

func TestSelect_OperationTuning(t *testing.T) {
	sel := newTestSelector()
	client := clientprofile.Profile{Name: "wide", TotalBudget: 10 * time.Minute, MaxPages: 100}

	tests := []struct {
		op          pagination.Operation
		hint        int
		wantName    string
		wantBatch   int
		wantTimeout time.Duration
	}{
		{pagination.OpLeads, 50, Complete, 100, 67500 * time.Millisecond},
		{pagination.OpEmails, 50, Complete, 100, 67500 * time.Millisecond},
		{pagination.OpLeads, 800, Conservative, 100, 15 * time.Second},
		{pagination.OpAccounts, 50, Complete, 80, 45 * time.Second},
		{pagination.OpCampaigns, 800, Conservative, 40, 15 * time.Second},
		{pagination.OpAccounts, 300, Balanced, 80, 30 * time.Second},
	}

	for _, tt := range tests {
		got, err := sel.Select(Input{Operation: tt.op, Client: client, SizeHint: tt.hint})
		if err != nil {
			t.Fatalf("Select() error = %v", err)
		}
		if got.Name != tt.wantName || got.BatchSize != tt.wantBatch || got.RequestTimeout != tt.wantTimeout {
			t.Errorf("%s hint %d = %s/%d/%v, want %s/%d/%v",
				tt.op, tt.hint, got.Name, got.BatchSize, got.RequestTimeout, tt.wantName, tt.wantBatch, tt.wantTimeout)
		}
	}
}

func TestSelect_CappedByClient(t *testing.T) {
	sel := newTestSelector()
	client := clientProfile(t, clientprofile.ProfileGenerous)

	got, err := sel.Select(Input{Operation: pagination.OpLeads, Client: client, SizeHint: 20})
	if err != nil {
		t.Fatalf("Select() error = %v", err)
	}
	if got.MaxPages != client.MaxPages {
		t.Errorf("MaxPages = %d, want client ceiling %d", got.MaxPages, client.MaxPages)
	}
	if got.RequestTimeout != client.UsableBudget() {
		t.Errorf("RequestTimeout = %v, want usable budget %v", got.RequestTimeout, client.UsableBudget())
	}
}

func TestSelect_PinnedAndCustom(t *testing.T) {
	sel := newTestSelector()
	strict := clientprofile.Detect("", "")

	got, err := sel.Select(Input{Operation: pagination.OpLeads, Client: strict, SizeHint: 5000, Pinned: "Enterprise"})
	if err != nil {
		t.Fatalf("pinned: Select() error = %v", err)
	}
	want, _ := Tier(Enterprise)
	if got != want {
		t.Errorf("pinned = %+v, want verbatim %+v", got, want)
	}

	custom := &Profile{MaxPages: 150, BatchSize: 400, RequestTimeout: 5 * time.Minute, RetryAttempts: 0}
	got, err = sel.Select(Input{Operation: pagination.OpAccounts, Client: strict, Custom: custom, Pinned: Conservative})
	if err != nil {
		t.Fatalf("custom: Select() error = %v", err)
	}
	if got.Name != Custom || got.MaxPages != 150 || got.BatchSize != 400 || got.RequestTimeout != 5*time.Minute {
		t.Errorf("custom = %+v, want verbatim copy named %q", got, Custom)
	}

	if _, err := sel.Select(Input{Operation: pagination.OpLeads, Pinned: "turbo"}); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("unknown pinned: error = %v, want ErrUnknownStrategy", err)
	}
}

func TestProfile_Validate(t *testing.T) {
	valid := Profile{MaxPages: 1, BatchSize: 1, RequestTimeout: time.Second, RetryAttempts: 0}
	if err := valid.Validate(); err != nil {
		t.Fatalf("lower bounds: Validate() error = %v", err)
	}
	upper := Profile{MaxPages: 200, BatchSize: 500, RequestTimeout: 600 * time.Second, RetryAttempts: 10}
	if err := upper.Validate(); err != nil {
		t.Fatalf("upper bounds: Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *Profile)
	}{
		{"batch zero", func(p *Profile) { p.BatchSize = 0 }},
		{"batch too large", func(p *Profile) { p.BatchSize = 501 }},
		{"pages zero", func(p *Profile) { p.MaxPages = 0 }},
		{"pages too many", func(p *Profile) { p.MaxPages = 201 }},
		{"timeout too short", func(p *Profile) { p.RequestTimeout = 999 * time.Millisecond }},
		{"timeout too long", func(p *Profile) { p.RequestTimeout = 601 * time.Second }},
		{"negative retries", func(p *Profile) { p.RetryAttempts = -1 }},
		{"too many retries", func(p *Profile) { p.RetryAttempts = 11 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("Validate() error = %v, want ErrOutOfBounds", err)
			}

			sel := newTestSelector()
			if _, err := sel.Select(Input{Operation: pagination.OpLeads, Custom: &p}); !errors.Is(err, ErrOutOfBounds) {
				t.Errorf("Select(custom) error = %v, want ErrOutOfBounds", err)
			}
		})
	}
}

func TestTiers_Ordered(t *testing.T) {
	got := Tiers()
	want := []string{Conservative, Balanced, Complete, Enterprise}
	if len(got) != len(want) {
		t.Fatalf("len(Tiers()) = %d, want %d", len(got), len(want))
	}
	for i, name := range want {
		if got[i].Name != name {
			t.Errorf("Tiers()[%d] = %q, want %q", i, got[i].Name, name)
		}
		if err := got[i].Validate(); err != nil {
			t.Errorf("tier %q invalid: %v", name, err)
		}
	}
}
