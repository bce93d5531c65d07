package rank

import (
	"sort"
	"time"

	"github.com/adrata/intel-engine/internal/model"
)

// RankedPerson joins a person's rank with the signals subset selection
// needs. Subsets only ever reference these existing ranks.
type RankedPerson struct {
	PersonRank    model.PersonRank
	CompanyRank   model.CompanyRank
	Influence     model.InfluenceLevel
	Role          model.Role
	LastEngagedAt *time.Time
}

// byHierarchy orders people lexicographically by (company rank, person rank).
func byHierarchy(people []RankedPerson) []RankedPerson {
	out := make([]RankedPerson, len(people))
	copy(out, people)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompanyRank.Rank != out[j].CompanyRank.Rank {
			return out[i].CompanyRank.Rank < out[j].CompanyRank.Rank
		}
		return out[i].PersonRank.Rank < out[j].PersonRank.Rank
	})
	return out
}

func toEntries(people []RankedPerson) []model.QueueEntry {
	out := make([]model.QueueEntry, len(people))
	for i, p := range people {
		out[i] = model.QueueEntry{
			ContactID:   p.PersonRank.ContactID,
			CompanyID:   p.PersonRank.CompanyID,
			CompanyRank: p.CompanyRank.Rank,
			PersonRank:  p.PersonRank.Rank,
		}
	}
	return out
}

// PriorityQueue selects the top-n people across companies by
// (company rank, person rank).
func PriorityQueue(people []RankedPerson, n int) []model.QueueEntry {
	ordered := byHierarchy(people)
	if n >= 0 && len(ordered) > n {
		ordered = ordered[:n]
	}
	return toEntries(ordered)
}

// QualifiedLeads selects buyer-group members with High or Medium influence
// across companies, in hierarchy order. Introducers and roleless people are
// not leads.
func QualifiedLeads(people []RankedPerson) []model.QueueEntry {
	filtered := make([]RankedPerson, 0, len(people))
	for _, p := range people {
		if p.Influence == model.InfluenceHigh || p.Influence == model.InfluenceMedium {
			filtered = append(filtered, p)
		}
	}
	return toEntries(byHierarchy(filtered))
}

// ActiveProspects selects buyer-group members engaged within the window, in
// hierarchy order.
func ActiveProspects(people []RankedPerson, window time.Duration, now time.Time) []model.QueueEntry {
	cutoff := now.Add(-window)
	filtered := make([]RankedPerson, 0, len(people))
	for _, p := range people {
		if p.Role == model.RoleNone || p.LastEngagedAt == nil {
			continue
		}
		if p.LastEngagedAt.After(cutoff) {
			filtered = append(filtered, p)
		}
	}
	return toEntries(byHierarchy(filtered))
}
