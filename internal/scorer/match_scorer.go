package scorer

import (
	"sort"
	"strings"

	"github.com/leadpipeline/leadpipe/internal/model"
)

// addressFuzzyThreshold is the minimum trigram similarity for an
// address_fuzzy signal to be considered at all. Below it the signal is
// discarded, never just scored lower.
const addressFuzzyThreshold = 0.60

// DefaultMaxCandidates is the default cap on candidates returned per lead.
const DefaultMaxCandidates = 5

// Candidate is one scored (canonical lead, CRM lead) pairing.
type Candidate struct {
	CrmLeadID  string
	MatchType  model.MatchType
	Confidence float64
	Details    map[string]any
}

// Scorer scores a canonical lead against a tenant's CRM corpus using the
// email_exact / phone_exact / address_fuzzy signal cascade, in that
// priority order. It holds no state and is safe for concurrent use.
type Scorer struct {
	MaxCandidates int
}

// New returns a Scorer with DefaultMaxCandidates.
func New() *Scorer {
	return &Scorer{MaxCandidates: DefaultMaxCandidates}
}

// Score evaluates lead against every crm lead in corpus and returns up
// to s.MaxCandidates results sorted by confidence descending. Per
// (canonical, crm_lead) pair, only the maximum-confidence signal is
// kept; ties are broken by signal priority (email > phone > address).
func (s *Scorer) Score(lead model.CanonicalLead, corpus []model.CrmLead) []Candidate {
	max := s.MaxCandidates
	if max <= 0 {
		max = DefaultMaxCandidates
	}

	candidates := make([]Candidate, 0, len(corpus))
	for _, crm := range corpus {
		if c, ok := s.scorePair(lead, crm); ok {
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	if len(candidates) > max {
		candidates = candidates[:max]
	}
	return candidates
}

// scorePair returns the maximum-confidence signal between one canonical
// lead and one CRM lead, or ok=false if none applies. On equal confidence
// the higher-priority signal (email > phone > address) wins.
func (s *Scorer) scorePair(lead model.CanonicalLead, crm model.CrmLead) (Candidate, bool) {
	if lead.EmailNormalized != "" && crm.EmailNormalized != "" && lead.EmailNormalized == crm.EmailNormalized {
		return Candidate{
			CrmLeadID:  crm.ID,
			MatchType:  model.MatchTypeEmailExact,
			Confidence: 1.00,
			Details:    map[string]any{"email": lead.EmailNormalized},
		}, true
	}

	var best Candidate
	found := false
	if len(lead.PhoneNormalized) >= 10 && len(crm.PhoneNormalized) >= 10 && lead.PhoneNormalized == crm.PhoneNormalized {
		best = Candidate{
			CrmLeadID:  crm.ID,
			MatchType:  model.MatchTypePhoneExact,
			Confidence: 0.95,
			Details:    map[string]any{"phone": lead.PhoneNormalized},
		}
		found = true
	}

	if lead.AddressNormalized != "" && crm.AddressNormalized != "" {
		sim := TrigramSimilarity(lead.AddressNormalized, crm.AddressNormalized)
		if sim > addressFuzzyThreshold && (!found || sim > best.Confidence) {
			best = Candidate{
				CrmLeadID:  crm.ID,
				MatchType:  model.MatchTypeAddressFuzzy,
				Confidence: sim,
				Details: map[string]any{
					"lead_address": lead.AddressNormalized,
					"crm_address":  crm.AddressNormalized,
				},
			}
			found = true
		}
	}

	return best, found
}

// TrigramSimilarity computes the Jaccard index over character 3-gram
// sets of a and b: |A ∩ B| / |A ∪ B|. Mirrors pg_trgm's similarity()
// closely enough for scoring purposes without a round trip per
// candidate — strings shorter than 3 runes after padding degenerate
// to a single shingle.
func TrigramSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}

	setA := trigrams(a)
	setB := trigrams(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for g := range setA {
		if setB[g] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// trigrams returns the set of overlapping 3-character shingles of s,
// padded with a boundary marker the way pg_trgm pads its input so
// leading/trailing edges contribute to the similarity score.
func trigrams(s string) map[string]bool {
	padded := "  " + strings.ToLower(s) + " "
	runes := []rune(padded)
	if len(runes) < 3 {
		return map[string]bool{string(runes): true}
	}

	set := make(map[string]bool, len(runes))
	for i := 0; i+3 <= len(runes); i++ {
		set[string(runes[i:i+3])] = true
	}
	return set
}
