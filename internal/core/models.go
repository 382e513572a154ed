package core

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrDeviceNotFound     = errors.New("device not found")
	ErrInvalidPrivacyMode = errors.New("invalid privacy mode")
	ErrCommandFailed      = errors.New("device command failed")
)

// PrivacyState is the lens shutter state of a camera. Exactly two values
// exist; anything else coming back from the vendor is an error, not a
// third state.
type PrivacyState string

const (
	PrivacyOn      PrivacyState = "on"
	PrivacyOff     PrivacyState = "off"
	privacyUnknown PrivacyState = ""
)

// ParsePrivacyState validates a user or vendor supplied mode string
func ParsePrivacyState(s string) (PrivacyState, error) {
	switch PrivacyState(s) {
	case PrivacyOn:
		return PrivacyOn, nil
	case PrivacyOff:
		return PrivacyOff, nil
	default:
		return privacyUnknown, fmt.Errorf("%w: %q", ErrInvalidPrivacyMode, s)
	}
}

// PrivacyFromEnable maps the vendor's 0/1 enable flag to a state
func PrivacyFromEnable(enable int) (PrivacyState, error) {
	switch enable {
	case 1:
		return PrivacyOn, nil
	case 0:
		return PrivacyOff, nil
	default:
		return privacyUnknown, fmt.Errorf("%w: enable=%d", ErrInvalidPrivacyMode, enable)
	}
}

// Enabled returns the vendor's 0/1 representation of the state
func (p PrivacyState) Enabled() bool {
	return p == PrivacyOn
}

// Device is the in-memory record for one monitored camera. Records live
// only for the lifetime of the process; the host framework persists its
// own derived entity state.
type Device struct {
	Serial    string       `json:"serial"`
	Name      string       `json:"name"`
	Online    bool         `json:"online"`
	Privacy   PrivacyState `json:"privacy"`
	Stale     bool         `json:"stale"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Available reports whether the device's entities should be presented
// as live: the directory sees it online and the last status fetch
// succeeded.
func (d Device) Available() bool {
	return d.Online && !d.Stale
}

// ChangeEvent records one observed privacy transition for a device
type ChangeEvent struct {
	ID        string       `json:"id"`
	Serial    string       `json:"device_serial"`
	Name      string       `json:"device_name"`
	OldState  PrivacyState `json:"old_status"`
	NewState  PrivacyState `json:"new_status"`
	Timestamp time.Time    `json:"timestamp"`
}
