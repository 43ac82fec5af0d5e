package domain

import (
	"encoding/json"
	"fmt"
)

type FlowID string

type Status string

const (
	Waiting         Status = "waiting"
	PreparationDone Status = "preparation done"
	AccessCheckDone Status = "access check done"
)

var statusRank = map[Status]int{
	Waiting:         0,
	PreparationDone: 1,
	AccessCheckDone: 2,
}

// Advances reports whether moving from s to next keeps the status monotonic.
// Unknown statuses never advance.
func (s Status) Advances(next Status) bool {
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	n, ok := statusRank[next]
	return ok && n >= cur
}

// CreateAccessFlowOptions is the input for starting a flow.
type CreateAccessFlowOptions struct {
	UserID              int     `json:"userId" validate:"required,gt=0"`
	RoleIDs             []int   `json:"roleIds" validate:"required,min=1,dive,gt=0"`
	GuildID             int     `json:"guildId" validate:"required,gt=0"`
	Priority            int     `json:"priority" validate:"gte=0"`
	RecheckAccess       bool    `json:"recheckAccess"`
	UpdateMemberships   bool    `json:"updateMemberships"`
	ManageRewards       bool    `json:"manageRewards"`
	ForceRewardActions  bool    `json:"forceRewardActions"`
	OnlyForThisPlatform *string `json:"onlyForThisPlatform,omitempty" validate:"omitempty,min=1"`
}

// AccessFlowData is the persisted flow record.
type AccessFlowData struct {
	CreateAccessFlowOptions
	Status                 Status       `json:"status"`
	AccessCheckResult      []RoleAccess `json:"accessCheckResult,omitempty"`
	UpdateMembershipResult []int        `json:"updateMembershipResult,omitempty"`
}

func NewAccessFlowData(opts CreateAccessFlowOptions) AccessFlowData {
	return AccessFlowData{CreateAccessFlowOptions: opts, Status: Waiting}
}

// Fields encodes every set attribute of the record as a JSON value keyed by
// its record field name.
func (d AccessFlowData) Fields() (map[string]string, error) {
	return encodeFields(d)
}

// FlowUpdate is the partial record write produced by one stage. Empty status
// and nil slices are not written, so a merge never clears a field.
type FlowUpdate struct {
	Status                 Status       `json:"status,omitempty"`
	AccessCheckResult      []RoleAccess `json:"accessCheckResult"`
	UpdateMembershipResult []int        `json:"updateMembershipResult"`
}

func (u FlowUpdate) Fields() (map[string]string, error) {
	return encodeFields(u)
}

// encodeFields marshals v and splits the resulting object into one JSON
// value per top level key, dropping nulls.
func encodeFields(v any) (map[string]string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(b, &obj); err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	out := make(map[string]string, len(obj))
	for k, raw := range obj {
		if string(raw) == "null" {
			continue
		}
		out[k] = string(raw)
	}
	return out, nil
}

// DecodeFlow rebuilds a record from its per-field JSON values.
func DecodeFlow(fields map[string]string) (*AccessFlowData, error) {
	obj := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		obj[k] = json.RawMessage(v)
	}
	b, err := json.Marshal(obj)
	if err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	var d AccessFlowData
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &d, nil
}
