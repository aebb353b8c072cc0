package ble

import (
	"fmt"
	"time"
)

const (
	intervalUnit = 1250 * time.Microsecond
	timeoutUnit  = 10 * time.Millisecond
)

// ConnParams are the parameters currently in use on a link, in controller
// units: interval in 1.25 ms, supervision timeout in 10 ms.
type ConnParams struct {
	Interval uint16
	Latency  uint16
	Timeout  uint16
}

func (p ConnParams) String() string {
	return fmt.Sprintf("interval=%s latency=%d timeout=%s",
		IntervalDuration(p.Interval), p.Latency, TimeoutDuration(p.Timeout))
}

// ParamRequest is a connection parameter update request.
type ParamRequest struct {
	MinInterval uint16
	MaxInterval uint16
	Latency     uint16
	Timeout     uint16
}

// IntervalUnits converts d to 1.25 ms units, rounding down.
func IntervalUnits(d time.Duration) uint16 { return uint16(d / intervalUnit) }

// TimeoutUnits converts d to 10 ms units, rounding down.
func TimeoutUnits(d time.Duration) uint16 { return uint16(d / timeoutUnit) }

// IntervalDuration converts 1.25 ms units back to a duration.
func IntervalDuration(units uint16) time.Duration { return time.Duration(units) * intervalUnit }

// TimeoutDuration converts 10 ms units back to a duration.
func TimeoutDuration(units uint16) time.Duration { return time.Duration(units) * timeoutUnit }
