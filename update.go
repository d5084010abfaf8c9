package raffle

import "slices"

// AssignmentsField is the payload key carrying the regrouped assignment list
const AssignmentsField = "assignments"

// DefaultRewardFields are the campaign fields whose change invalidates the assignments
var DefaultRewardFields = []string{"prize_categories", "total_numbers"}

// UpdatePayload is the minimal campaign update: changed root fields only
type UpdatePayload map[string]any

// BuildUpdatePayload keeps the root fields of current that diff touched. A root
// field removed from current is sent as nil. When any touched field is listed in
// rewardFields, the payload also carries assignments regrouped for submission.
func BuildUpdatePayload(current map[string]any, diff Diff, rewardFields []string, assignments []GeneratedPrizeAssignment) UpdatePayload {
	payload := make(UpdatePayload)
	rewardChanged := false

	for _, field := range ChangedTopLevelFields(diff) {
		payload[field] = deepCopy(current[field])
		if slices.Contains(rewardFields, field) {
			rewardChanged = true
		}
	}

	if rewardChanged {
		payload[AssignmentsField] = GroupAssignments(assignments)
	}
	return payload
}

// RewardsChanged reports whether diff touches any of rewardFields
func RewardsChanged(diff Diff, rewardFields []string) bool {
	for _, field := range ChangedTopLevelFields(diff) {
		if slices.Contains(rewardFields, field) {
			return true
		}
	}
	return false
}
