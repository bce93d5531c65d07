// Package dedup normalizes and scores candidate records so that one person
// never enters the buyer-group or ranking stages twice.
package dedup

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/adrata/intel-engine/internal/model"
)

var (
	multiSpaceRe = regexp.MustCompile(`\s{2,}`)
	nonDigitRe   = regexp.MustCompile(`[^\d+]`)

	// foldMarks strips diacritical marks after NFD decomposition, so
	// "José" and "Jose" compare equal.
	foldMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// legalSuffixes lists entity suffixes stripped during company normalization.
var legalSuffixes = []string{
	" LLC", " L.L.C.", " INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION", " LTD", " LTD.", " LIMITED",
	" LP", " L.P.", " LLP", " CO", " CO.", " PLC", " GMBH", " AG", " PLLC",
}

// NormalizeEmail lowercases an address and strips plus-addressing from the
// local part, so jane+crm@acme.com and Jane@acme.com compare equal.
func NormalizeEmail(email string) string {
	email = strings.ToLower(strings.TrimSpace(email))
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.Index(local, "+"); plus > 0 {
		local = local[:plus]
	}
	return local + "@" + domain
}

// NormalizePhone reduces a phone number to E.164-ish form: digits with a
// single leading +. US 10-digit numbers get a +1 prefix. Returns "" when
// fewer than 7 digits survive.
func NormalizePhone(phone string) string {
	phone = nonDigitRe.ReplaceAllString(phone, "")
	phone = strings.TrimLeft(phone, "+")
	if len(phone) < 7 {
		return ""
	}
	if len(phone) == 10 {
		return "+1" + phone
	}
	if len(phone) == 11 && strings.HasPrefix(phone, "1") {
		return "+" + phone
	}
	return "+" + phone
}

// NormalizeProfileURL canonicalizes a profile URL: scheme and "www." dropped,
// lowercased host, trailing slash removed.
func NormalizeProfileURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = strings.TrimPrefix(raw, "https://")
	raw = strings.TrimPrefix(raw, "http://")
	raw = strings.TrimPrefix(raw, "www.")
	raw = strings.TrimSuffix(raw, "/")

	// Lowercase host but preserve path casing (some profile slugs are
	// case-sensitive in theory; in practice providers lowercase them).
	return strings.ToLower(raw)
}

// NormalizeName uppercases, folds diacritics, strips punctuation, and
// collapses whitespace for fuzzy person-name comparison.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	if folded, _, err := transform.String(foldMarks, name); err == nil {
		name = folded
	}

	name = strings.ToUpper(name)
	name = strings.NewReplacer(",", "", ".", "", "'", "", "\"", "", "-", " ").Replace(name)
	name = multiSpaceRe.ReplaceAllString(name, " ")
	return strings.TrimSpace(name)
}

// NormalizeCompany normalizes a company name like NormalizeName and strips
// common legal suffixes.
func NormalizeCompany(name string) string {
	name = NormalizeName(name)
	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}
	return strings.TrimSpace(name)
}

// NormalizeDomain lowercases a domain and strips scheme, www, and any path.
func NormalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "https://")
	domain = strings.TrimPrefix(domain, "http://")
	domain = strings.TrimPrefix(domain, "www.")
	if i := strings.IndexAny(domain, "/?#"); i >= 0 {
		domain = domain[:i]
	}
	return domain
}

// QueryKey derives the in-flight dedup key for an identity query. Two queries
// with the same key must share one underlying resolution.
func QueryKey(q model.IdentityQuery) string {
	if e := NormalizeEmail(q.Email); e != "" && strings.Contains(e, "@") {
		return "email:" + e
	}
	if u := NormalizeProfileURL(q.ProfileURL); u != "" {
		return "url:" + u
	}

	key := "name:" + NormalizeName(q.Name)
	if d := NormalizeDomain(q.CompanyDomain); d != "" {
		return key + "|domain:" + d
	}
	if c := NormalizeCompany(q.CompanyName); c != "" {
		return key + "|company:" + c
	}
	return key
}
