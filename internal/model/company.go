package model

import "time"

// EmployeeBand buckets company headcount for firmographic scoring.
type EmployeeBand string

const (
	BandMicro      EmployeeBand = "1-10"
	BandSmall      EmployeeBand = "11-50"
	BandMid        EmployeeBand = "51-200"
	BandLarge      EmployeeBand = "201-1000"
	BandEnterprise EmployeeBand = "1000+"
)

// Company is a target account within a workspace.
type Company struct {
	ID          string       `json:"id"`
	WorkspaceID string       `json:"workspace_id"`
	Name        string       `json:"name"`
	Domain      string       `json:"domain,omitempty"`
	Industry    string       `json:"industry,omitempty"`
	Band        EmployeeBand `json:"employee_band,omitempty"`

	// GrowthSignal is a normalized [0,1] growth/funding score maintained by
	// the surrounding CRM (funding rounds, hiring velocity).
	GrowthSignal float64 `json:"growth_signal"`

	// IndustryFit is a normalized [0,1] fit of the company's industry to the
	// seller's target segment.
	IndustryFit float64 `json:"industry_fit"`

	CreatedAt time.Time `json:"created_at"`
}

// BandScore maps an employee band to a normalized [0,1] firmographic score.
// Mid-market bands score highest for the target segment.
func (b EmployeeBand) BandScore() float64 {
	switch b {
	case BandMicro:
		return 0.2
	case BandSmall:
		return 0.5
	case BandMid:
		return 1.0
	case BandLarge:
		return 0.8
	case BandEnterprise:
		return 0.6
	default:
		return 0.0
	}
}
