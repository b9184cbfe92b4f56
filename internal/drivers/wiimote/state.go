package wiimote

import "time"

// connState tracks one connection through the handshake. Send states are
// gated on the transport's readiness poll and retry the same command on the
// next tick if the channel is busy; every wait state except stateWaitStatus
// treats its timeout as an implicit success so the machine always reaches
// stateReady in bounded time, even against hardware that never acknowledges.
type connState uint8

const (
	stateIdle connState = iota
	stateWaitInit
	stateSendStatusReq
	stateWaitStatus
	stateSendExtUnlock1
	stateWaitExtUnlock1Ack
	stateSendExtUnlock2
	stateWaitExtUnlock2Ack
	stateReadExtType
	stateWaitExtType
	stateSendReportMode
	stateWaitReportAck
	stateSendLEDs
	stateWaitLEDsAck
	stateReady
)

var stateNames = map[connState]string{
	stateIdle:              "idle",
	stateWaitInit:          "wait-init",
	stateSendStatusReq:     "send-status-req",
	stateWaitStatus:        "wait-status",
	stateSendExtUnlock1:    "send-ext-unlock1",
	stateWaitExtUnlock1Ack: "wait-ext-unlock1-ack",
	stateSendExtUnlock2:    "send-ext-unlock2",
	stateWaitExtUnlock2Ack: "wait-ext-unlock2-ack",
	stateReadExtType:       "read-ext-type",
	stateWaitExtType:       "wait-ext-type",
	stateSendReportMode:    "send-report-mode",
	stateWaitReportAck:     "wait-report-ack",
	stateSendLEDs:          "send-leds",
	stateWaitLEDsAck:       "wait-leds-ack",
	stateReady:             "ready",
}

func (s connState) String() string {
	return stateNames[s]
}

const (
	initDelay         = 100 * time.Millisecond
	statusTimeout     = 500 * time.Millisecond
	ackTimeout        = 1 * time.Second
	keepaliveInterval = 3 * time.Second

	statusRetryMax = 5
)

// due implements "fires at or after deadline". time.Time is monotonic and
// 64-bit so no wraparound handling is needed, but the comparison must stay
// inclusive.
func due(now, deadline time.Time) bool {
	return !now.Before(deadline)
}

// timeoutNext returns the state entered when a wait state's deadline
// expires without the expected response. stateWaitStatus is handled
// separately because it is the only state with bounded retry.
func timeoutNext(s connState) (connState, bool) {
	switch s {
	case stateWaitInit:
		return stateSendStatusReq, true
	case stateWaitExtUnlock1Ack:
		return stateSendExtUnlock2, true
	case stateWaitExtUnlock2Ack:
		return stateReadExtType, true
	case stateWaitExtType:
		return stateSendReportMode, true
	case stateWaitReportAck:
		return stateSendLEDs, true
	case stateWaitLEDsAck:
		return stateReady, true
	default:
		return s, false
	}
}

// ackNext returns the state entered when a wait state receives an
// acknowledgement for the given command id. A hardware-reported error code
// advances through the same edge as a timeout, which for these states is
// the same edge as success.
func ackNext(s connState, cmd byte) (connState, bool) {
	switch {
	case s == stateWaitExtUnlock1Ack && cmd == cmdWriteReg:
		return stateSendExtUnlock2, true
	case s == stateWaitExtUnlock2Ack && cmd == cmdWriteReg:
		return stateReadExtType, true
	case s == stateWaitReportAck && cmd == cmdReportMode:
		return stateSendLEDs, true
	case s == stateWaitLEDsAck && cmd == cmdLEDs:
		return stateReady, true
	default:
		return s, false
	}
}
