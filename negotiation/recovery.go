// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package negotiation

// armRecovery schedules a recovery check after RecoveryDelay. Caller
// holds the lock.
func (e *Engine) armRecovery() {
	e.timerGeneration++
	generation := e.timerGeneration
	e.recoveryTimer = e.config.Clock.AfterFunc(e.config.RecoveryDelay, func() {
		e.recoveryExpired(generation)
	})
	e.logger.Info("link down, recovery armed", "delay", e.config.RecoveryDelay)
}

// cancelRecovery stops a pending recovery check. A callback already
// running sees the bumped generation and does nothing.
func (e *Engine) cancelRecovery() {
	e.timerGeneration++
	if e.recoveryTimer != nil {
		e.recoveryTimer.Stop()
		e.recoveryTimer = nil
	}
}

func (e *Engine) recoveryExpired(generation uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || generation != e.timerGeneration {
		return
	}
	e.recoveryTimer = nil
	if !e.linkState.unhealthy() {
		return
	}

	if e.config.Initiator {
		if e.restarts >= e.config.MaxRestarts {
			e.logger.Warn("ICE restarts exhausted", "restarts", e.restarts)
			e.showPrompt()
			return
		}
		e.restarts++
		if err := e.sendOffer(e.ctx, true); err != nil {
			e.logger.Error("sending restart offer failed", "attempt", e.restarts, "error", err)
		}
		e.armRecovery()
		return
	}

	if e.restartSeen {
		// The initiator is already restarting; give it one more delay.
		e.restartSeen = false
		e.armRecovery()
		return
	}
	e.showPrompt()
}

func (e *Engine) showPrompt() {
	if e.prompting {
		return
	}
	e.prompting = true
	e.logger.Info("link still down, asking user to end or retry")
	e.config.Prompter.ShowReconnectPrompt(e.config.SessionID)
}

func (e *Engine) dismissPrompt() {
	if !e.prompting {
		return
	}
	e.prompting = false
	e.config.Prompter.DismissPrompt(e.config.SessionID)
}
