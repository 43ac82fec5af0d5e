package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/SirClappington/guildq/internal/domain"
	"github.com/SirClappington/guildq/internal/logging"
	"github.com/SirClappington/guildq/internal/queue"
)

// Service starts flows: it writes the initial record and hands the flow to
// the preparation queue.
type Service struct {
	flows    *Store
	queues   *queue.Registry
	validate *validator.Validate
	log      logging.Logger
}

func NewService(flows *Store, queues *queue.Registry, log logging.Logger) *Service {
	return &Service{
		flows:    flows,
		queues:   queues,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      logging.OrNop(log),
	}
}

// CreateAccessFlow validates opts, stores a record in status waiting and
// enqueues the first PreparationJob. If the enqueue fails the record is
// removed again.
func (s *Service) CreateAccessFlow(ctx context.Context, opts domain.CreateAccessFlowOptions) (domain.FlowID, error) {
	if err := s.validate.StructCtx(ctx, opts); err != nil {
		return "", &ValidationError{Err: err}
	}

	id := domain.FlowID(uuid.NewString())
	if err := s.flows.Create(ctx, id, domain.NewAccessFlowData(opts)); err != nil {
		return "", err
	}

	prep, err := s.queues.Get(domain.Preparation)
	if err != nil {
		return "", err
	}
	job := &domain.PreparationJob{
		BaseJob: domain.BaseJob{
			JobMeta: domain.JobMeta{FlowID: id, Priority: opts.Priority},
			UserID:  opts.UserID,
			RoleIDs: opts.RoleIDs,
		},
		RecheckAccess: opts.RecheckAccess,
	}
	if err := prep.Enqueue(ctx, job); err != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if derr := s.flows.Delete(dctx, id); derr != nil {
			s.log.Error("orphaned flow record", "flowId", id, "error", derr)
		}
		return "", fmt.Errorf("enqueue preparation for flow %s: %w", id, err)
	}

	s.log.Info("flow created", "flowId", id, "userId", opts.UserID, "guildId", opts.GuildID)
	return id, nil
}

// ValidationError reports invalid CreateAccessFlowOptions.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return "invalid flow options: " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }
