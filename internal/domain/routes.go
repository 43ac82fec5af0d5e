package domain

import (
	"fmt"
	"slices"
)

// Route describes where a stage may hand its flow next and which record
// fields the stage reads back when its job is rehydrated.
type Route struct {
	Successors []QueueName
	// Terminal stages may finish the flow by returning no next queue.
	Terminal   bool
	Attributes []string
}

// Routes is the flow state machine.
var Routes = map[QueueName]Route{
	Preparation: {
		Successors: []QueueName{AccessCheck, UpdateMembership},
		Attributes: []string{"userId", "roleIds", "priority", "recheckAccess"},
	},
	AccessCheck: {
		Successors: []QueueName{UpdateMembership, ManageReward},
		Terminal:   true,
		Attributes: []string{"userId", "roleIds", "priority", "updateMemberships"},
	},
	UpdateMembership: {
		Successors: []QueueName{ManageReward},
		Terminal:   true,
		Attributes: []string{"userId", "roleIds", "priority", "accessCheckResult", "manageRewards"},
	},
	ManageReward: {
		Terminal: true,
		Attributes: []string{
			"userId", "guildId", "priority", "updateMembershipResult",
			"forceRewardActions", "onlyForThisPlatform",
		},
	},
}

// QueueNames lists every stage in flow order.
var QueueNames = []QueueName{Preparation, AccessCheck, UpdateMembership, ManageReward}

// CheckRoute validates the hand-off from stage from to next ("" ends the flow).
func CheckRoute(from, next QueueName) error {
	r, ok := Routes[from]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownQueue, from)
	}
	if next == "" {
		if r.Terminal {
			return nil
		}
		return fmt.Errorf("%w: %s must name a next queue", ErrIllegalRoute, from)
	}
	if !slices.Contains(r.Successors, next) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalRoute, from, next)
	}
	return nil
}
