package location

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/freshlane/realtime-go/internal/model"
)

// StalenessJob periodically re-derives the staleness-annotated roster view
// and hands it to the display callback. It only reads; samples are never
// mutated or removed by age.
type StalenessJob struct {
	roster   *Roster
	interval time.Duration
	publish  func([]model.RosterEntry)
	done     chan struct{}
}

func NewStalenessJob(roster *Roster, interval time.Duration, publish func([]model.RosterEntry)) *StalenessJob {
	return &StalenessJob{
		roster:   roster,
		interval: interval,
		publish:  publish,
		done:     make(chan struct{}),
	}
}

func (j *StalenessJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("roster staleness job started")
}

func (j *StalenessJob) Stop() {
	close(j.done)
	log.Info().Msg("roster staleness job stopped")
}

func (j *StalenessJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.publish(j.roster.Snapshot())
		}
	}
}
