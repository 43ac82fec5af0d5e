package domain

import (
	"encoding/json"
	"fmt"
)

type Requirement struct {
	RequirementID int  `json:"requirementId"`
	Access        bool `json:"access"`
	Amount        int  `json:"amount"`
}

// RoleAccess is the access decision for one role.
type RoleAccess struct {
	RoleID       int           `json:"roleId"`
	Access       bool          `json:"access"`
	Requirements []Requirement `json:"requirements"`
}

// Result is one stage output. An empty Next() ends the flow.
type Result interface {
	Queue() QueueName
	Next() QueueName
	Update() FlowUpdate
}

type PreparationResult struct {
	NextQueue QueueName `json:"nextQueue"`
}

type AccessCheckResult struct {
	NextQueue         QueueName    `json:"nextQueue,omitempty"`
	AccessCheckResult []RoleAccess `json:"accessCheckResult"`
}

type UpdateMembershipResult struct {
	NextQueue              QueueName `json:"nextQueue,omitempty"`
	UpdateMembershipResult []int     `json:"updateMembershipResult"`
}

type ManageRewardResult struct{}

func (PreparationResult) Queue() QueueName      { return Preparation }
func (AccessCheckResult) Queue() QueueName      { return AccessCheck }
func (UpdateMembershipResult) Queue() QueueName { return UpdateMembership }
func (ManageRewardResult) Queue() QueueName     { return ManageReward }

func (r PreparationResult) Next() QueueName      { return r.NextQueue }
func (r AccessCheckResult) Next() QueueName      { return r.NextQueue }
func (r UpdateMembershipResult) Next() QueueName { return r.NextQueue }
func (ManageRewardResult) Next() QueueName       { return "" }

func (PreparationResult) Update() FlowUpdate {
	return FlowUpdate{Status: PreparationDone}
}

func (r AccessCheckResult) Update() FlowUpdate {
	roles := r.AccessCheckResult
	if roles == nil {
		roles = []RoleAccess{}
	}
	return FlowUpdate{Status: AccessCheckDone, AccessCheckResult: roles}
}

func (r UpdateMembershipResult) Update() FlowUpdate {
	return FlowUpdate{UpdateMembershipResult: r.UpdateMembershipResult}
}

func (ManageRewardResult) Update() FlowUpdate { return FlowUpdate{} }

// DecodeResult unmarshals a stage response into the result variant for name.
func DecodeResult(name QueueName, payload []byte) (Result, error) {
	var (
		res Result
		err error
	)
	switch name {
	case Preparation:
		var r PreparationResult
		err = json.Unmarshal(payload, &r)
		res = r
	case AccessCheck:
		var r AccessCheckResult
		err = json.Unmarshal(payload, &r)
		res = r
	case UpdateMembership:
		var r UpdateMembershipResult
		err = json.Unmarshal(payload, &r)
		res = r
	case ManageReward:
		res = ManageRewardResult{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s result: %w", name, err)
	}
	return res, nil
}
