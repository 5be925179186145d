// Package jobs runs background maintenance on a cron schedule.
//
// A Job wraps a Task with an overlap guard, a per-run deadline and panic
// recovery:
//
//	purge := jobs.New("invite purge", jobs.PurgeInvites(svc), jobs.WithLogger(logger))
//	if err := purge.Start(cfg.Invites.PurgeSchedule); err != nil {
//		return err
//	}
//	shutdown.Register("invite purge", purge.Stop)
//
// PurgeInvites deletes pending invitations past their seven day window.
// PruneReplicas drops read replicas that stopped answering pings.
package jobs
