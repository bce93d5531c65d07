package dedup

import (
	"github.com/adrata/intel-engine/internal/model"
)

// SameIdentity reports whether two candidate records resolve to the same
// person: any shared normalized email, or the same normalized profile URL.
func SameIdentity(a, b *model.CandidateRecord) bool {
	if a.ProfileURL != "" && b.ProfileURL != "" &&
		NormalizeProfileURL(a.ProfileURL) == NormalizeProfileURL(b.ProfileURL) {
		return true
	}

	seen := make(map[string]bool, len(a.Emails))
	for _, e := range a.Emails {
		if n := NormalizeEmail(e.Address); n != "" {
			seen[n] = true
		}
	}
	for _, e := range b.Emails {
		if seen[NormalizeEmail(e.Address)] {
			return true
		}
	}
	return false
}

// Merge folds candidate records describing the same person into one. Fields
// are unioned; on conflicting scalar fields the most-recently-collected
// record wins. The caller guarantees all inputs pass SameIdentity against
// the first record.
func Merge(records []*model.CandidateRecord) *model.CandidateRecord {
	if len(records) == 0 {
		return nil
	}

	merged := *records[0]
	merged.Emails = append([]model.Email(nil), records[0].Emails...)
	merged.Phones = append([]model.Phone(nil), records[0].Phones...)

	for _, rec := range records[1:] {
		newer := rec.CollectedAt.After(merged.CollectedAt)

		mergeScalar(&merged.FullName, rec.FullName, newer)
		mergeScalar(&merged.Title, rec.Title, newer)
		mergeScalar(&merged.CompanyName, rec.CompanyName, newer)
		mergeScalar(&merged.CompanyDomain, rec.CompanyDomain, newer)
		mergeScalar(&merged.ProfileURL, rec.ProfileURL, newer)

		merged.Emails = unionEmails(merged.Emails, rec.Emails)
		merged.Phones = unionPhones(merged.Phones, rec.Phones)

		if newer {
			merged.CollectedAt = rec.CollectedAt
			merged.Provider = rec.Provider
			merged.RefID = rec.RefID
			merged.RawPayload = rec.RawPayload
		}
	}

	return &merged
}

// mergeScalar fills an empty destination, and overwrites a non-empty one
// only when the incoming record is more recent.
func mergeScalar(dst *string, src string, newer bool) {
	if src == "" {
		return
	}
	if *dst == "" || newer {
		*dst = src
	}
}

func unionEmails(dst, src []model.Email) []model.Email {
	index := make(map[string]int, len(dst))
	for i, e := range dst {
		index[NormalizeEmail(e.Address)] = i
	}
	for _, e := range src {
		key := NormalizeEmail(e.Address)
		if key == "" {
			continue
		}
		if i, ok := index[key]; ok {
			// Verified status is sticky: once any provider verifies, keep it.
			if e.Verified {
				dst[i].Verified = true
			}
			if dst[i].Kind == "" {
				dst[i].Kind = e.Kind
			}
			continue
		}
		index[key] = len(dst)
		dst = append(dst, e)
	}
	return dst
}

func unionPhones(dst, src []model.Phone) []model.Phone {
	seen := make(map[string]bool, len(dst))
	for _, p := range dst {
		seen[NormalizePhone(p.Number)] = true
	}
	for _, p := range src {
		key := NormalizePhone(p.Number)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, p)
	}
	return dst
}
