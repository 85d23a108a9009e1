package domain

import (
	"strings"

	"github.com/ahmed-lotfy-abousalem/Beacon-App-sub001/internal/events"
)

const (
	SignalBarsConnected = 5
	SignalBarsAvailable = 3
	SignalBarsMin       = 1
)

// SignalBars maps a peer's transport state onto the five-bar indicator scale.
// The radio layer reports no numeric strength for ad-hoc peers, so the bars
// are a heuristic over the connection state.
func SignalBars(status events.PeerState) int {
	switch status {
	case events.PeerStateConnected:
		return SignalBarsConnected
	case events.PeerStateAvailable:
		return SignalBarsAvailable
	default:
		return SignalBarsMin
	}
}

var emergencyKeywords = []string{"emergency", "rescue", "medical"}

// IsEmergencyDevice reports whether a peer's advertised name or device type
// identifies it as an emergency-responder unit.
func IsEmergencyDevice(name, deviceType string) bool {
	name = strings.ToLower(name)
	deviceType = strings.ToLower(deviceType)
	for _, keyword := range emergencyKeywords {
		if strings.Contains(name, keyword) || strings.Contains(deviceType, keyword) {
			return true
		}
	}
	return false
}
