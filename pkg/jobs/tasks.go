package jobs

import (
	"context"

	"github.com/HiVibecodium/affiliate-aggregator-sub003/pkg/observability"
)

const (
	// DefaultPurgeSchedule runs the invite purge at 17 minutes past every hour
	DefaultPurgeSchedule = "17 * * * *"
	// DefaultReplicaCheckSchedule checks read replicas every five minutes
	DefaultReplicaCheckSchedule = "*/5 * * * *"
)

// InvitePurger deletes expired pending invitations
type InvitePurger interface {
	PurgeExpiredInvites(ctx context.Context) (int64, error)
}

// ReplicaPruner drops read replicas that no longer answer
type ReplicaPruner interface {
	RemoveUnhealthyReplicas(ctx context.Context) int
}

// PurgeInvites returns a task that purges expired invitations
func PurgeInvites(purger InvitePurger) Task {
	return func(ctx context.Context) error {
		_, err := purger.PurgeExpiredInvites(ctx)
		return err
	}
}

// PruneReplicas returns a task that drops unhealthy read replicas. Reads
// fall back to the primary once none are left.
func PruneReplicas(pruner ReplicaPruner, logger *observability.Logger) Task {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return func(ctx context.Context) error {
		if n := pruner.RemoveUnhealthyReplicas(ctx); n > 0 {
			logger.WithField("removed", n).Warn("Dropped unhealthy read replicas")
		}
		return nil
	}
}
