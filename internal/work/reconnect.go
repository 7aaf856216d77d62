package work

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Recovery policy
//
// Every failure produces exactly one corrective action. The first attempt
// after a healthy session runs immediately; further consecutive attempts
// wait for an exponentially growing, capped delay. Reaching Ready resets
// the sequence. With MaxAttempts set, running out parks the machine in Idle
// until Retry is called, exactly like a configuration failure.

func (o *Orchestrator) scheduleRetry(action retryAction) {
	if o.shuttingDown {
		return
	}
	if action != retryNetwork && !o.state.NetworkOn {
		// Nothing to do until the link returns.
		o.setPhase(PhaseAcquiringNetwork)
		return
	}

	o.attempts++
	if limit := o.cfg.Reconnect.MaxAttempts; limit > 0 && o.attempts > limit {
		o.logger.Error("giving up after repeated failures, waiting for retry",
			"action", action.String(),
			"attempts", limit,
		)
		o.park()
		return
	}
	o.retryAction = action

	if o.attempts == 1 {
		o.metrics.ReconnectScheduled(0)
		o.logger.Info("recovering", "action", action.String())
		o.runRetry(action)
		return
	}

	delay := o.backoff.NextBackOff()
	if delay == backoff.Stop {
		o.park()
		return
	}
	o.metrics.ReconnectScheduled(delay)
	o.setPhase(PhaseReconnecting)
	o.retry.arm(o.sched, o.now(), delay, o.post)
	o.logger.Info("retry scheduled",
		"action", action.String(),
		"attempt", o.attempts,
		"delay", delay.Round(time.Millisecond),
	)
}

func (o *Orchestrator) runRetry(action retryAction) {
	switch action {
	case retryNetwork:
		o.onConnectNetwork()
	case retryFetch:
		o.fetchConfig()
	default:
		o.connectBroker()
	}
}

func (o *Orchestrator) onReconnectTimer(ev Event) {
	if !o.retry.fire(ev) {
		o.stale(KindReconnectTimer)
		return
	}
	if o.shuttingDown {
		return
	}
	if o.retryAction != retryNetwork && !o.state.NetworkOn {
		o.setPhase(PhaseAcquiringNetwork)
		return
	}
	o.runRetry(o.retryAction)
}

// onRetry is the external retry trigger for a parked machine.
func (o *Orchestrator) onRetry() {
	if o.shuttingDown {
		return
	}
	if !o.parked {
		o.logger.Info("retry requested while active, ignoring", "phase", o.state.Phase.String())
		return
	}
	o.parked = false
	o.resetRetries()
	o.logger.Info("retry requested")

	if o.state.NetworkOn {
		o.fetchConfig()
		return
	}
	o.onConnectNetwork()
}

func (o *Orchestrator) park() {
	o.parked = true
	o.retry.cancel()
	o.watchdog.cancel()
	o.setPhase(PhaseIdle)
}

func (o *Orchestrator) resetRetries() {
	o.attempts = 0
	o.retry.cancel()
	o.backoff.Reset()
}

// connectFailureAction decides where a failed connect resumes: credentials
// that carry an expiry are re-derived from fresh configuration, the rest
// retry the connect directly.
func (o *Orchestrator) connectFailureAction() retryAction {
	if o.cfg.RefetchOnReconnect || o.session == nil || o.session.Perishable() {
		return retryFetch
	}
	return retryConnect
}

func (o *Orchestrator) sessionReusable() bool {
	return o.session != nil && !o.cfg.RefetchOnReconnect && !o.session.Expired(o.now())
}

// onWatchdog handles a request that outlived RequestTimeout as if its
// terminal event had been a failure.
func (o *Orchestrator) onWatchdog(ev Event) {
	if !o.watchdog.fire(ev) {
		o.stale(KindWatchdogTimeout)
		return
	}
	o.logger.Warn("request timed out",
		"phase", o.state.Phase.String(),
		"timeout", o.cfg.RequestTimeout,
	)

	switch o.state.Phase {
	case PhaseFetchingConfig:
		o.state.ConfigPending = false
		o.closeConfig()
		o.fail("configuration fetch", ErrRequestTimeout)
		o.scheduleRetry(retryFetch)
	case PhaseConnectingBroker:
		o.fail("broker connect", ErrRequestTimeout)
		o.handle(Event{Kind: KindBrokerConnectFailed})
	case PhaseSubscribing:
		o.fail("subscribe", ErrRequestTimeout)
		o.requestDisconnect()
	case PhaseDisconnecting:
		o.fail("disconnect", ErrRequestTimeout)
		o.handle(Event{Kind: KindBrokerDisconnected})
	}
}
