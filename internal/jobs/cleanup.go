package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/service"
)

// CleanupJob periodically sweeps stale friend-mode flags so a forgotten
// activation never changes how a later purchase is fulfilled.
type CleanupJob struct {
	friendMode *service.FriendModeService
	interval   time.Duration
	done       chan struct{}
}

func NewCleanupJob(friendMode *service.FriendModeService, interval time.Duration) *CleanupJob {
	return &CleanupJob{
		friendMode: friendMode,
		interval:   interval,
		done:       make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	close(j.done)
	log.Info().Msg("cleanup job stopped")
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.sweep()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

func (j *CleanupJob) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	j.friendMode.Sweep(ctx)
}
