package filters

import (
	logic "github.com/patrickwarner/rtbengine/internal/logic"
	"github.com/patrickwarner/rtbengine/internal/models"
)

// FilterEligible returns the campaigns that pass targeting, status and budget
// checks for the request, in their original order. The second return value
// counts rejected campaigns by reason.
func FilterEligible(campaigns []models.Campaign, req *models.BidRequest) ([]models.Campaign, map[string]int) {
	out := make([]models.Campaign, 0, len(campaigns))
	rejected := make(map[string]int)
	for i := range campaigns {
		if reason := logic.EligibilityReason(&campaigns[i], req); reason != "" {
			rejected[reason]++
			continue
		}
		out = append(out, campaigns[i])
	}
	return out, rejected
}
