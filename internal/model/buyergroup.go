package model

// Role is a buyer-group role assigned to a person at a target company.
type Role string

const (
	RoleNone          Role = ""
	RoleDecisionMaker Role = "decision_maker"
	RoleChampion      Role = "champion"
	RoleStakeholder   Role = "stakeholder"
	RoleBlocker       Role = "blocker"
	RoleIntroducer    Role = "introducer"
)

// InfluenceLevel is derived from Role by a fixed lookup, never inferred
// independently.
type InfluenceLevel string

const (
	InfluenceNone   InfluenceLevel = ""
	InfluenceHigh   InfluenceLevel = "high"
	InfluenceMedium InfluenceLevel = "medium"
	InfluenceLow    InfluenceLevel = "low"
)

// InfluenceForRole is the single source of truth for the role → influence
// mapping. Every call site must use it so (role, influence, membership)
// triples cannot drift.
func InfluenceForRole(r Role) InfluenceLevel {
	switch r {
	case RoleDecisionMaker, RoleChampion:
		return InfluenceHigh
	case RoleBlocker, RoleStakeholder:
		return InfluenceMedium
	case RoleIntroducer:
		return InfluenceLow
	default:
		return InfluenceNone
	}
}

// Weight returns the numeric ranking weight of an influence level.
func (l InfluenceLevel) Weight() int {
	switch l {
	case InfluenceHigh:
		return 3
	case InfluenceMedium:
		return 2
	case InfluenceLow:
		return 1
	default:
		return 0
	}
}

// BuyerGroupMember is a canonical contact scoped to one target company with
// an assigned role. Membership is defined by the role: a member with no role
// is not a buyer-group member.
type BuyerGroupMember struct {
	ContactID string         `json:"contact_id"`
	CompanyID string         `json:"company_id"`
	Role      Role           `json:"role"`
	Influence InfluenceLevel `json:"influence"`

	// Signal records the rule that produced the assignment, e.g.
	// "title:vp_sales budget_holder:sales_tools".
	Signal string `json:"signal,omitempty"`
}

// IsBuyerGroupMember reports membership. Holds by construction:
// a member carries a role and anyone with a role is a member.
func (m BuyerGroupMember) IsBuyerGroupMember() bool {
	return m.Role != RoleNone
}
