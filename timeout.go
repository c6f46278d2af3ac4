package sipgw

import (
	"context"
)

// consumeTimeouts acts on the store sweeper's reports: expired streams get
// the full teardown, expired devices are unregistered. The sweeper only
// reports; removal happens here, so a report may repeat until it does.
func (g *Gateway) consumeTimeouts(ctx context.Context) {
	devices := g.store.TimeoutDevices()
	streams := g.store.TimeoutStreams()

	for {
		select {
		case <-ctx.Done():
			return
		case gbCode := <-devices:
			if g.store.Unregister(gbCode) {
				g.log.Info().Str("gb_code", gbCode).Msg("device timed out")
			}
		case st := <-streams:
			g.log.Info().Str("gb_code", st.GBCode).Uint32("stream_id", st.StreamID).Msg("stream timed out")
			g.StopSession(ctx, st.GBCode, st.StreamID)
		}
	}
}
