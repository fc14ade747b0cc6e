package sim

import (
	"context"
	"time"

	"tuw-telemetry/internal/logging"
	"tuw-telemetry/internal/session"
)

// Run plays the script against ctrl, one tick per interval, until the
// script ends or the context is done. The caller owns ctrl.Shutdown.
func (s *Simulator) Run(ctx context.Context, ctrl *session.Controller) error {
	log := logging.FromContext(ctx)
	log.Info("starting simulator", "scenario", s.script.Name, "tick_interval", s.tickInterval, "ticks", s.script.Ticks)
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			done, err := s.Advance(ctrl)
			if err != nil {
				log.Error("tick failed", "tick", s.tick, "err", err)
				return err
			}
			if done {
				log.Info("scenario finished", "ticks", s.tick)
				return nil
			}
		case <-ctx.Done():
			log.Info("stopping simulator", "ticks", s.tick)
			return nil
		}
	}
}
