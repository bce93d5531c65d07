package buyergroup

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/adrata/intel-engine/internal/model"
)

// Config describes the deal's product category: which department signs the
// purchase and which functions sit close enough to the deal to matter.
type Config struct {
	// ProductCategory names the category being sold, for audit output.
	ProductCategory string `yaml:"product_category" mapstructure:"product_category"`

	// BudgetHolder is the department whose leadership owns the budget for
	// this category. Leadership there becomes the Decision Maker.
	BudgetHolder Department `yaml:"budget_holder" mapstructure:"budget_holder"`

	// RelevantDepartments are the functions whose leadership champions the
	// deal and whose individual contributors can make introductions.
	RelevantDepartments []Department `yaml:"relevant_departments" mapstructure:"relevant_departments"`
}

// DefaultConfig targets a sales-intelligence product: sales leadership holds
// the budget; marketing, operations, and the executive team are adjacent.
func DefaultConfig() Config {
	return Config{
		ProductCategory: "sales_intelligence",
		BudgetHolder:    DeptSales,
		RelevantDepartments: []Department{
			DeptSales, DeptMarketing, DeptOperations, DeptExecutive, DeptCustomerSuccess,
		},
	}
}

// Result is the classified buyer group for one company. Members carries an
// entry per surviving roster contact, including those assigned no role.
type Result struct {
	CompanyID string
	Members   []model.BuyerGroupMember

	// Empty is set when no roster member survived enrichment with enough
	// confidence to classify. Callers must surface it, not swallow it.
	Empty bool
}

// InGroup returns only the members that carry a role.
func (r *Result) InGroup() []model.BuyerGroupMember {
	out := make([]model.BuyerGroupMember, 0, len(r.Members))
	for _, m := range r.Members {
		if m.IsBuyerGroupMember() {
			out = append(out, m)
		}
	}
	return out
}

// Classifier assigns buyer-group roles from title heuristics. Influence is
// always the fixed per-role lookup, never inferred independently.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a classifier for one product category.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg}
}

// DealSize widens or narrows the classified group. Small deals keep only the
// core buyers; large deals pull executive sponsors in from outside the
// relevant departments.
type DealSize string

const (
	DealSmall  DealSize = "small"
	DealMedium DealSize = "medium"
	DealLarge  DealSize = "large"
)

// Request tunes one classification run. Zero values fall back to the
// classifier's configuration.
type Request struct {
	ProductCategory string   `json:"product_category,omitempty"`
	DealSize        DealSize `json:"deal_size,omitempty"`
}

// Classify assigns roles using the classifier's configured category and a
// medium-deal group width.
func (c *Classifier) Classify(companyID string, roster []*model.CanonicalContact) *Result {
	return c.ClassifyDeal(companyID, roster, Request{})
}

// ClassifyDeal assigns a role to every confidently-resolved contact in the
// roster. Low-confidence contacts are excluded: a fabricated buyer group is
// worse than an empty one.
func (c *Classifier) ClassifyDeal(companyID string, roster []*model.CanonicalContact, req Request) *Result {
	cfg := c.cfg
	if req.ProductCategory != "" {
		cfg.ProductCategory = req.ProductCategory
	}

	res := &Result{CompanyID: companyID}

	for _, contact := range roster {
		if contact.LowConfidence {
			continue
		}
		role, signal := classifyTitle(cfg, contact.Title, req.DealSize)
		res.Members = append(res.Members, model.BuyerGroupMember{
			ContactID: contact.ID,
			CompanyID: companyID,
			Role:      role,
			Influence: model.InfluenceForRole(role),
			Signal:    signal,
		})
	}

	if len(res.InGroup()) == 0 {
		res.Empty = true
		zap.L().Warn("buyergroup: empty buyer group",
			zap.String("company_id", companyID),
			zap.Int("roster_size", len(roster)),
		)
	}
	return res
}

func classifyTitle(cfg Config, title string, size DealSize) (model.Role, string) {
	if title == "" {
		return model.RoleNone, "no title signal"
	}

	dept := CategorizeDepartment(title)
	sen := SeniorityOf(title)

	switch {
	case dept == DeptFinanceLegal:
		// Finance, legal, and procurement gate the purchase regardless of
		// the product category or deal size.
		if sen.IsLeadership() {
			return model.RoleBlocker, fmt.Sprintf("%s in %s gates spend approval", sen, dept)
		}
		return model.RoleStakeholder, fmt.Sprintf("%s in %s reviews the purchase", sen, dept)

	case sen.IsLeadership() && dept == cfg.BudgetHolder:
		return model.RoleDecisionMaker,
			fmt.Sprintf("%s in budget-holding department %s for %s", sen, dept, cfg.ProductCategory)

	case sen.IsLeadership() && relevant(cfg, dept):
		return model.RoleChampion,
			fmt.Sprintf("%s in adjacent department %s", sen, dept)

	case sen == SeniorityMidManagement && dept == cfg.BudgetHolder:
		return model.RoleChampion,
			fmt.Sprintf("%s in budget-holding department %s", sen, dept)

	case sen == SeniorityMidManagement && relevant(cfg, dept):
		if size == DealSmall {
			return model.RoleNone, fmt.Sprintf("%s in %s outside the core group for a small deal", sen, dept)
		}
		return model.RoleStakeholder,
			fmt.Sprintf("%s in adjacent department %s", sen, dept)

	case sen == SeniorityIC && relevant(cfg, dept):
		if size == DealSmall {
			return model.RoleNone, fmt.Sprintf("individual contributor in %s outside the core group for a small deal", dept)
		}
		return model.RoleIntroducer,
			fmt.Sprintf("individual contributor in adjacent department %s", dept)

	case sen.IsLeadership() && size == DealLarge:
		// Large deals reach the wider executive team.
		return model.RoleStakeholder,
			fmt.Sprintf("%s in %s pulled in as executive sponsor for a large deal", sen, dept)
	}

	return model.RoleNone, fmt.Sprintf("no buying signal for %s in %s", sen, dept)
}

func relevant(cfg Config, dept Department) bool {
	if dept == cfg.BudgetHolder {
		return true
	}
	for _, d := range cfg.RelevantDepartments {
		if d == dept {
			return true
		}
	}
	return false
}
