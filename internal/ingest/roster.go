package ingest

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/model"
)

// RosterEntry is one parsed contact row: the identity query to enrich plus
// the source line for error reporting.
type RosterEntry struct {
	Query model.IdentityQuery
	Line  int
}

// rosterColumns maps recognized header names to column indexes. -1 means the
// column is absent from the export.
type rosterColumns struct {
	name    int
	email   int
	profile int
	company int
	domain  int
}

// Header aliases seen across CRM exports. Keys are lowercased with spaces
// and underscores stripped.
var rosterAliases = map[string]func(*rosterColumns, int){
	"name":          func(c *rosterColumns, i int) { c.name = i },
	"fullname":      func(c *rosterColumns, i int) { c.name = i },
	"contactname":   func(c *rosterColumns, i int) { c.name = i },
	"email":         func(c *rosterColumns, i int) { c.email = i },
	"emailaddress":  func(c *rosterColumns, i int) { c.email = i },
	"workemail":     func(c *rosterColumns, i int) { c.email = i },
	"linkedin":      func(c *rosterColumns, i int) { c.profile = i },
	"linkedinurl":   func(c *rosterColumns, i int) { c.profile = i },
	"profileurl":    func(c *rosterColumns, i int) { c.profile = i },
	"company":       func(c *rosterColumns, i int) { c.company = i },
	"companyname":   func(c *rosterColumns, i int) { c.company = i },
	"account":       func(c *rosterColumns, i int) { c.company = i },
	"accountname":   func(c *rosterColumns, i int) { c.company = i },
	"domain":        func(c *rosterColumns, i int) { c.domain = i },
	"website":       func(c *rosterColumns, i int) { c.domain = i },
	"companydomain": func(c *rosterColumns, i int) { c.domain = i },
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "")
	h = strings.ReplaceAll(h, "_", "")
	return h
}

func detectRosterColumns(header []string) (rosterColumns, error) {
	cols := rosterColumns{name: -1, email: -1, profile: -1, company: -1, domain: -1}
	for i, h := range header {
		if set, ok := rosterAliases[normalizeHeader(h)]; ok {
			set(&cols, i)
		}
	}
	if cols.email < 0 && cols.profile < 0 && (cols.name < 0 || cols.company < 0) {
		return cols, eris.Errorf("ingest: roster header %v has no usable identity columns", header)
	}
	return cols, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (c rosterColumns) entry(row []string, line int) (RosterEntry, bool) {
	q := model.IdentityQuery{
		Name:          cell(row, c.name),
		Email:         cell(row, c.email),
		ProfileURL:    cell(row, c.profile),
		CompanyName:   cell(row, c.company),
		CompanyDomain: cell(row, c.domain),
	}
	if q.IsEmpty() {
		return RosterEntry{}, false
	}
	return RosterEntry{Query: q, Line: line}, true
}

// ParseRoster reads a headered CSV roster export and returns one entry per
// usable row. Rows with no identity columns filled are skipped with a warning.
func ParseRoster(ctx context.Context, rowCh <-chan []string, errCh <-chan error, headerCh <-chan []string) ([]RosterEntry, error) {
	var header []string
	select {
	case header = <-headerCh:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "ingest: roster context cancelled")
	}

	cols, err := detectRosterColumns(header)
	if err != nil {
		return nil, err
	}

	var entries []RosterEntry
	line := 1
	for row := range rowCh {
		line++
		entry, ok := cols.entry(row, line)
		if !ok {
			zap.L().Warn("ingest: skipping roster row without identity columns",
				zap.Int("line", line),
			)
			continue
		}
		entries = append(entries, entry)
	}

	for err := range errCh {
		if err != nil {
			return entries, err
		}
	}

	return entries, nil
}

// companyColumns maps recognized account-list headers to column indexes.
type companyColumns struct {
	name      int
	domain    int
	industry  int
	employees int
}

var companyAliases = map[string]func(*companyColumns, int){
	"name":          func(c *companyColumns, i int) { c.name = i },
	"company":       func(c *companyColumns, i int) { c.name = i },
	"companyname":   func(c *companyColumns, i int) { c.name = i },
	"account":       func(c *companyColumns, i int) { c.name = i },
	"accountname":   func(c *companyColumns, i int) { c.name = i },
	"domain":        func(c *companyColumns, i int) { c.domain = i },
	"website":       func(c *companyColumns, i int) { c.domain = i },
	"companydomain": func(c *companyColumns, i int) { c.domain = i },
	"industry":      func(c *companyColumns, i int) { c.industry = i },
	"employees":     func(c *companyColumns, i int) { c.employees = i },
	"employeecount": func(c *companyColumns, i int) { c.employees = i },
	"headcount":     func(c *companyColumns, i int) { c.employees = i },
	"companysize":   func(c *companyColumns, i int) { c.employees = i },
}

func detectCompanyColumns(header []string) (companyColumns, error) {
	cols := companyColumns{name: -1, domain: -1, industry: -1, employees: -1}
	for i, h := range header {
		if set, ok := companyAliases[normalizeHeader(h)]; ok {
			set(&cols, i)
		}
	}
	if cols.name < 0 {
		return cols, eris.Errorf("ingest: account list header %v has no company name column", header)
	}
	return cols, nil
}

// BandForHeadcount buckets a raw employee count into an employee band.
func BandForHeadcount(n int) model.EmployeeBand {
	switch {
	case n <= 0:
		return ""
	case n <= 10:
		return model.BandMicro
	case n <= 50:
		return model.BandSmall
	case n <= 200:
		return model.BandMid
	case n <= 1000:
		return model.BandLarge
	default:
		return model.BandEnterprise
	}
}

// ParseCompanies reads a headered account-list export into company records
// for the given workspace. Rows without a name are skipped.
func ParseCompanies(ctx context.Context, workspaceID string, rowCh <-chan []string, errCh <-chan error, headerCh <-chan []string) ([]model.Company, error) {
	var header []string
	select {
	case header = <-headerCh:
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "ingest: account list context cancelled")
	}

	cols, err := detectCompanyColumns(header)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var companies []model.Company
	for row := range rowCh {
		name := cell(row, cols.name)
		if name == "" {
			continue
		}
		co := model.Company{
			ID:          uuid.New().String(),
			WorkspaceID: workspaceID,
			Name:        name,
			Domain:      strings.ToLower(cell(row, cols.domain)),
			Industry:    cell(row, cols.industry),
			CreatedAt:   now,
		}
		if raw := cell(row, cols.employees); raw != "" {
			if n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", "")); err == nil {
				co.Band = BandForHeadcount(n)
			}
		}
		companies = append(companies, co)
	}

	for err := range errCh {
		if err != nil {
			return companies, err
		}
	}

	return companies, nil
}
