// Package screening resolves client identifiers and names against global
// control lists (sanctions, PEP) and tenant-specific internal lists.
package screening

import (
	"context"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
)

// ListType classifies a watchlist entry.
type ListType string

const (
	ListSanctions ListType = "SANCTIONS"
	ListPEP       ListType = "PEP"
	ListInternal  ListType = "INTERNAL"
)

// Entry is a single watchlist record. Read-only to the engine.
type Entry struct {
	ID       string   `json:"id" db:"id"`
	TenantID string   `json:"tenant_id" db:"tenant_id"`
	TaxID    string   `json:"tax_id" db:"tax_id"`
	Name     string   `json:"name" db:"name"`
	ListType ListType `json:"list_type" db:"list_type"`
	Reason   string   `json:"reason" db:"reason"`
	Active   bool     `json:"active" db:"active"`
}

// Result is the outcome of screening one client.
type Result struct {
	SanctionsMatch bool   `json:"sanctions_match"`
	PEPMatch       bool   `json:"pep_match"`
	InternalMatch  bool   `json:"internal_match"`
	InternalReason string `json:"internal_reason,omitempty"`
}

// Store is the narrow lookup contract against the watchlist data source.
type Store interface {
	// EntriesByTaxID returns active global entries whose identifier matches
	// exactly.
	EntriesByTaxID(ctx context.Context, taxID string) ([]Entry, error)
	// ActiveInternalEntries returns the tenant's active internal-list
	// entries; name matching happens in the screener.
	ActiveInternalEntries(ctx context.Context, tenantID string) ([]Entry, error)
}

// Screener performs watchlist lookups. It returns a typed result or an
// error; fail-open versus fail-closed is the caller's decision per call
// site, never hidden here.
type Screener struct {
	store  Store
	logger *zap.SugaredLogger

	// similarityThreshold triggers an internal match on near-identical
	// names in addition to the substring rule.
	similarityThreshold float64
}

// NewScreener builds a screener over the given watchlist store.
func NewScreener(store Store, logger *zap.SugaredLogger) *Screener {
	return &Screener{
		store:               store,
		logger:              logger,
		similarityThreshold: 0.85,
	}
}

// Screen resolves one client against all lists. Identifier matching is
// exact; internal-list matching is case-insensitive substring over the
// freeform name field, deliberately permissive to catch name variants at
// the cost of false positives, with a Levenshtein similarity check picking
// up close misspellings the substring rule misses.
func (s *Screener) Screen(ctx context.Context, tenantID, taxID, fullName string) (Result, error) {
	var result Result

	entries, err := s.store.EntriesByTaxID(ctx, strings.ToUpper(strings.TrimSpace(taxID)))
	if err != nil {
		return Result{}, fmt.Errorf("global watchlist lookup: %w", err)
	}
	for _, e := range entries {
		switch e.ListType {
		case ListSanctions:
			result.SanctionsMatch = true
		case ListPEP:
			result.PEPMatch = true
		}
	}

	internal, err := s.store.ActiveInternalEntries(ctx, tenantID)
	if err != nil {
		return Result{}, fmt.Errorf("internal watchlist lookup: %w", err)
	}
	name := normalizeName(fullName)
	id := strings.ToUpper(strings.TrimSpace(taxID))
	for _, e := range internal {
		if !e.Active {
			continue
		}
		if e.TaxID != "" && e.TaxID == id {
			result.InternalMatch = true
			result.InternalReason = e.Reason
			break
		}
		entryName := normalizeName(e.Name)
		if entryName == "" || name == "" {
			continue
		}
		if strings.Contains(name, entryName) || strings.Contains(entryName, name) {
			result.InternalMatch = true
			result.InternalReason = e.Reason
			break
		}
		if similarity(name, entryName) >= s.similarityThreshold {
			result.InternalMatch = true
			result.InternalReason = e.Reason
			break
		}
	}

	return result, nil
}

// similarity is the normalized Levenshtein similarity in [0,1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	if longest == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

func normalizeName(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
