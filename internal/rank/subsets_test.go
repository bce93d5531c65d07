package rank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adrata/intel-engine/internal/model"
)

func ranked(contactID, companyID string, companyRank, personRank int, role model.Role, lastEngaged *time.Time) RankedPerson {
	return RankedPerson{
		PersonRank:    model.PersonRank{ContactID: contactID, CompanyID: companyID, Rank: personRank},
		CompanyRank:   model.CompanyRank{CompanyID: companyID, Rank: companyRank},
		Influence:     model.InfluenceForRole(role),
		Role:          role,
		LastEngagedAt: lastEngaged,
	}
}

func TestPriorityQueueOrdersByHierarchy(t *testing.T) {
	people := []RankedPerson{
		ranked("p3", "co-2", 2, 1, model.RoleChampion, nil),
		ranked("p2", "co-1", 1, 2, model.RoleStakeholder, nil),
		ranked("p1", "co-1", 1, 1, model.RoleDecisionMaker, nil),
		ranked("p4", "co-2", 2, 2, model.RoleIntroducer, nil),
	}

	queue := PriorityQueue(people, 3)
	require.Len(t, queue, 3)
	assert.Equal(t, "p1", queue[0].ContactID)
	assert.Equal(t, "p2", queue[1].ContactID)
	assert.Equal(t, "p3", queue[2].ContactID)

	// Entries reference existing ranks, never new ones.
	assert.Equal(t, 1, queue[0].CompanyRank)
	assert.Equal(t, 2, queue[1].PersonRank)
}

func TestPriorityQueueShorterThanLimit(t *testing.T) {
	people := []RankedPerson{ranked("p1", "co-1", 1, 1, model.RoleChampion, nil)}
	assert.Len(t, PriorityQueue(people, 50), 1)
}

func TestQualifiedLeadsKeepHighAndMediumInfluence(t *testing.T) {
	people := []RankedPerson{
		ranked("p1", "co-1", 1, 1, model.RoleDecisionMaker, nil),
		ranked("p2", "co-1", 1, 2, model.RoleStakeholder, nil),
		ranked("p3", "co-2", 2, 1, model.RoleChampion, nil),
		ranked("p4", "co-2", 2, 2, model.RoleIntroducer, nil),
		ranked("p5", "co-2", 2, 3, model.RoleNone, nil),
	}

	leads := QualifiedLeads(people)
	require.Len(t, leads, 3)
	assert.Equal(t, "p1", leads[0].ContactID)
	assert.Equal(t, "p2", leads[1].ContactID, "medium-influence members qualify as leads")
	assert.Equal(t, "p3", leads[2].ContactID)
}

func TestActiveProspectsRespectsWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	recent := now.Add(-10 * 24 * time.Hour)
	stale := now.Add(-120 * 24 * time.Hour)

	people := []RankedPerson{
		ranked("p1", "co-1", 1, 1, model.RoleChampion, &recent),
		ranked("p2", "co-1", 1, 2, model.RoleStakeholder, &stale),
		ranked("p3", "co-1", 1, 3, model.RoleIntroducer, nil),
		ranked("p4", "co-1", 1, 4, model.RoleNone, &recent),
	}

	prospects := ActiveProspects(people, 90*24*time.Hour, now)
	require.Len(t, prospects, 1)
	assert.Equal(t, "p1", prospects[0].ContactID)
}
