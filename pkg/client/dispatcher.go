package client

import (
	"activityhub/pkg/types"
)

// dispatch projects one inbound event into the store. Each branch is a pure
// projection; malformed payloads are logged and leave prior state intact.
func (c *Client) dispatch(env *types.Envelope) {
	switch env.Event {
	case types.EventNewActivity, types.EventActivityUpdate:
		var a types.Activity
		if err := env.Decode(&a); err != nil {
			c.log.Warn().Err(err).Str("event", env.Event).Msg("dropping malformed activity")
			return
		}
		c.store.Prepend(a)

	case types.EventInitialActivities:
		var list []types.Activity
		if err := env.Decode(&list); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed activity list")
			return
		}
		c.store.ReplaceFeed(list)
		c.store.SetDashboard(list)

	case types.EventFilteredActivities, types.EventMyActivities:
		var list []types.Activity
		if err := env.Decode(&list); err != nil {
			c.log.Warn().Err(err).Str("event", env.Event).Msg("dropping malformed activity list")
			return
		}
		c.store.ReplaceFeed(list)

	case types.EventActivityStats:
		var u types.StatsUpdate
		if err := env.Decode(&u); err != nil {
			c.log.Warn().Err(err).Msg("dropping malformed stats update")
			return
		}
		c.store.MergeStats(u)

	case types.EventDashboardJoined:
		if c.membership.confirmJoin() {
			c.log.Info().Msg("dashboard room joined")
		} else {
			c.log.Debug().Str("state", c.membership.current().String()).Msg("ignoring dashboard_joined")
		}

	case types.EventDashboardLeft:
		c.log.Debug().Msg("dashboard room left")

	case types.EventDashboardError, types.EventActivityError, types.EventError:
		var p types.ErrorPayload
		_ = env.Decode(&p)
		c.log.Warn().Str("event", env.Event).Str("message", p.Message).Msg("server error event")

	case types.EventPong:
		c.log.Debug().Msg("pong")

	default:
		c.log.Debug().Str("event", env.Event).Msg("unhandled event")
	}
}

// emit sends an outbound envelope if a live handle exists, otherwise warns
// and returns ErrNotConnected. Requests are fire-and-forget: no retries.
func (c *Client) emit(event string, payload any) error {
	c.mu.Lock()
	sock := c.sock
	connected := c.connected
	c.mu.Unlock()

	if !connected || sock == nil {
		c.log.Warn().Str("event", event).Msg("not connected; dropping request")
		return ErrNotConnected
	}
	env, err := types.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	return sock.WriteEnvelope(env)
}

// JoinDashboard requests dashboard-room membership. The joined flag flips
// only on the server's dashboard_joined confirmation. When a role was
// configured, non-admins are refused before anything is emitted.
func (c *Client) JoinDashboard() error {
	if !c.Connected() {
		c.log.Warn().Msg("not connected; dropping join request")
		return ErrNotConnected
	}
	if c.opts.Role != "" && c.opts.Role != types.RoleAdmin {
		c.log.Warn().Str("role", c.opts.Role).Msg("dashboard join refused for role")
		return ErrNotAdmin
	}
	if err := c.membership.requestJoin(); err != nil {
		c.log.Warn().Err(err).Msg("join request refused")
		return err
	}
	if err := c.emit(types.EventJoinDashboard, nil); err != nil {
		c.membership.reset()
		return err
	}
	return nil
}

// LeaveDashboard leaves the dashboard room optimistically: local state is
// cleared immediately without waiting for server confirmation.
func (c *Client) LeaveDashboard() error {
	if err := c.membership.requestLeave(); err != nil {
		return err
	}
	err := c.emit(types.EventLeaveDashboard, nil)
	c.membership.reset()
	c.store.ClearDashboard()
	return err
}

// RequestInitialActivities asks for the most recent dashboard activities.
// Refused client-side unless membership is confirmed, and emitted at most
// once per join.
func (c *Client) RequestInitialActivities() error {
	if !c.membership.isJoined() {
		c.log.Warn().Msg("dashboard not joined; dropping initial activities request")
		return ErrNotJoined
	}
	if !c.membership.markInitialRequested() {
		c.log.Debug().Msg("initial activities already requested this join")
		return ErrInitialAlreadyRequested
	}
	return c.emit(types.EventRequestInitialActivities, nil)
}

// FilterActivities requests activities narrowed by type and/or timeframe.
// Requires only an active connection, not room membership.
func (c *Client) FilterActivities(f types.FilterRequest) error {
	if err := f.Validate(); err != nil {
		return err
	}
	return c.emit(types.EventFilterActivities, f)
}

// RequestStats asks for aggregate counts over the timeframe (empty means the
// server default).
func (c *Client) RequestStats(timeframe string) error {
	if !types.IsValidTimeframe(timeframe) {
		return types.ErrInvalidTimeframe
	}
	return c.emit(types.EventRequestActivityStats, types.StatsRequest{Timeframe: timeframe})
}

// RequestMyActivities asks for the authenticated user's own activity list.
func (c *Client) RequestMyActivities() error {
	return c.emit(types.EventGetMyActivities, nil)
}

// Ping sends a liveness probe.
func (c *Client) Ping() error {
	return c.emit(types.EventPing, nil)
}
