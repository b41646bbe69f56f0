package leads

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/propio/lead-scoring/internal/core"
)

// MemoryLeadStore is an in-memory LeadStore and OutcomeStore. Production
// deployments point the pipeline at the CRM's lead service; this adapter
// backs the CLI and tests with fixture data.
type MemoryLeadStore struct {
	mu           sync.RWMutex
	leads        map[string]*core.LeadSnapshot
	interactions map[string][]core.Interaction
	prefs        map[string][]core.PropertyPreference
	outcomes     map[string]bool
}

// NewMemoryLeadStore creates an empty lead store
func NewMemoryLeadStore() *MemoryLeadStore {
	return &MemoryLeadStore{
		leads:        make(map[string]*core.LeadSnapshot),
		interactions: make(map[string][]core.Interaction),
		prefs:        make(map[string][]core.PropertyPreference),
		outcomes:     make(map[string]bool),
	}
}

// Put stores a lead with its history
func (s *MemoryLeadStore) Put(lead *core.LeadSnapshot, interactions []core.Interaction, prefs []core.PropertyPreference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leads[lead.ID] = lead
	s.interactions[lead.ID] = interactions
	s.prefs[lead.ID] = prefs
}

// SetOutcome records a known conversion outcome for a lead
func (s *MemoryLeadStore) SetOutcome(leadID string, converted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[leadID] = converted
}

// GetLead returns a lead snapshot, or ErrNotFound
func (s *MemoryLeadStore) GetLead(ctx context.Context, id string) (*core.LeadSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lead, ok := s.leads[id]
	if !ok {
		return nil, fmt.Errorf("lead %s: %w", id, core.ErrNotFound)
	}
	return lead, nil
}

// GetInteractions returns all recorded interactions for a lead
func (s *MemoryLeadStore) GetInteractions(ctx context.Context, id string) ([]core.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.interactions[id], nil
}

// GetPropertyPrefs returns the lead's property preferences
func (s *MemoryLeadStore) GetPropertyPrefs(ctx context.Context, id string) ([]core.PropertyPreference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prefs[id], nil
}

// GetOutcomes returns every known conversion outcome
func (s *MemoryLeadStore) GetOutcomes(ctx context.Context, since time.Time) (map[string]bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]bool, len(s.outcomes))
	for id, converted := range s.outcomes {
		out[id] = converted
	}
	return out, nil
}

// leadFixture is the JSON shape of one lead in a fixture file
type leadFixture struct {
	Lead         core.LeadSnapshot         `json:"lead"`
	Interactions []core.Interaction        `json:"interactions"`
	Preferences  []core.PropertyPreference `json:"preferences"`
	Converted    *bool                     `json:"converted,omitempty"`
}

// LoadFixtures populates the store from a JSON file holding an array of
// leads with their histories.
func (s *MemoryLeadStore) LoadFixtures(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read fixture file: %w", err)
	}

	var fixtures []leadFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, fmt.Errorf("failed to parse fixture file: %w", err)
	}

	for i := range fixtures {
		f := &fixtures[i]
		if f.Lead.ID == "" {
			return 0, core.NewValidationError("lead.id", fmt.Sprintf("missing in fixture entry %d", i))
		}
		s.Put(&f.Lead, f.Interactions, f.Preferences)
		if f.Converted != nil {
			s.SetOutcome(f.Lead.ID, *f.Converted)
		}
	}
	return len(fixtures), nil
}

// All returns every stored lead with its history, for training
func (s *MemoryLeadStore) All() []*core.LeadSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.LeadSnapshot, 0, len(s.leads))
	for _, lead := range s.leads {
		out = append(out, lead)
	}
	return out
}
