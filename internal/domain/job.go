package domain

import (
	"encoding/json"
	"fmt"
)

type QueueName string

const (
	Preparation      QueueName = "preparation"
	AccessCheck      QueueName = "access-check"
	UpdateMembership QueueName = "update-membership"
	ManageReward     QueueName = "manage-reward"
)

// ParseQueueName returns ErrUnknownQueue for names outside the routing table.
func ParseQueueName(s string) (QueueName, error) {
	name := QueueName(s)
	if _, ok := Routes[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownQueue, s)
	}
	return name, nil
}

// JobMeta is carried by every job regardless of stage.
type JobMeta struct {
	FlowID   FlowID `json:"flowId"`
	Priority int    `json:"priority"`
}

func (m JobMeta) Meta() JobMeta { return m }

// Job is one stage input. The set of implementations is closed; Queue() is
// the variant tag.
type Job interface {
	Meta() JobMeta
	Queue() QueueName
}

type BaseJob struct {
	JobMeta
	UserID  int   `json:"userId"`
	RoleIDs []int `json:"roleIds"`
}

type PreparationJob struct {
	BaseJob
	RecheckAccess bool `json:"recheckAccess"`
}

type AccessCheckJob struct {
	BaseJob
	UpdateMemberships bool `json:"updateMemberships"`
}

type UpdateMembershipJob struct {
	BaseJob
	AccessCheckResult []RoleAccess `json:"accessCheckResult,omitempty"`
	ManageRewards     bool         `json:"manageRewards"`
}

type ManageRewardJob struct {
	JobMeta
	UserID                 int     `json:"userId"`
	GuildID                int     `json:"guildId"`
	UpdateMembershipResult []int   `json:"updateMembershipResult"`
	ForceRewardActions     bool    `json:"forceRewardActions"`
	OnlyForThisPlatform    *string `json:"onlyForThisPlatform,omitempty"`
}

func (PreparationJob) Queue() QueueName      { return Preparation }
func (AccessCheckJob) Queue() QueueName      { return AccessCheck }
func (UpdateMembershipJob) Queue() QueueName { return UpdateMembership }
func (ManageRewardJob) Queue() QueueName     { return ManageReward }

// NewJob returns a zero job of the variant tagged by name.
func NewJob(name QueueName) (Job, error) {
	switch name {
	case Preparation:
		return &PreparationJob{}, nil
	case AccessCheck:
		return &AccessCheckJob{}, nil
	case UpdateMembership:
		return &UpdateMembershipJob{}, nil
	case ManageReward:
		return &ManageRewardJob{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueue, name)
	}
}

// DecodeJob unmarshals a queue payload into the variant for name.
func DecodeJob(name QueueName, payload []byte) (Job, error) {
	job, err := NewJob(name)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, job); err != nil {
		return nil, fmt.Errorf("decode %s job: %w", name, err)
	}
	if job.Meta().FlowID == "" {
		return nil, fmt.Errorf("decode %s job: missing flowId", name)
	}
	return job, nil
}

// BuildJob assembles the job for name from flow record fields, as returned by
// a partial read of the record.
func BuildJob(name QueueName, id FlowID, fields map[string]json.RawMessage) (Job, error) {
	obj := make(map[string]json.RawMessage, len(fields)+1)
	for k, v := range fields {
		if v != nil {
			obj[k] = v
		}
	}
	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	obj["flowId"] = rawID
	payload, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return DecodeJob(name, payload)
}
