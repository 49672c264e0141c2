// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package config

// Config is the root configuration structure: fixtures, groups, their
// membership, circadian profiles, scenes, switches and system-wide
// settings for the control pipeline.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	DMX      DMXConfig       `yaml:"dmx"`
	Modbus   *ModbusConfig   `yaml:"modbus,omitempty"`
	MQTT     *MQTTConfig     `yaml:"mqtt,omitempty"`
	System   SystemSettings  `yaml:"system"`
	Fixtures []FixtureConfig `yaml:"fixtures"`
	Groups   []GroupConfig   `yaml:"groups"`

	CircadianProfiles []CircadianProfile `yaml:"circadian_profiles,omitempty"`
	Scenes            []Scene            `yaml:"scenes,omitempty"`
	Switches          []SwitchConfig     `yaml:"switches,omitempty"`
	Schedule          *ScheduleConfig    `yaml:"schedule,omitempty"`
}

// ScheduleConfig lists clock-time events that recall a scene, for
// fixed-time lighting changes independent of the circadian ring (e.g. a
// hard "all off" at midnight regardless of circadian state).
type ScheduleConfig struct {
	Timezone string          `yaml:"timezone,omitempty"`
	Events   []ScheduleEvent `yaml:"events"`
}

// ScheduleEvent fires a scene recall at a fixed time of day.
type ScheduleEvent struct {
	Time    string `yaml:"time"` // "HH:MM" or "HH:MM:SS"
	SceneID string `yaml:"scene_id,omitempty"`
	AllOff  bool   `yaml:"all_off,omitempty"`
}

// ServerConfig defines server endpoints.
type ServerConfig struct {
	HTTP string `yaml:"http"`
}

// DMXConfig defines the DMX output backend.
type DMXConfig struct {
	Sink       string `yaml:"sink"`                 // "mock" or "serial"
	Device     string `yaml:"device,omitempty"`      // serial TTY, e.g. /dev/ttyUSB0
	BaudRate   int    `yaml:"baud_rate,omitempty"`   // default 250000 (DMX512 standard)
	DedupeMs   int    `yaml:"dedupe_ms"`             // frame dedupe TTL; 0 or unset means 250, negative disables dedupe
	AutoEnable bool   `yaml:"auto_enable,omitempty"`
}

// ModbusConfig defines Modbus TCP server settings. Presence enables it.
type ModbusConfig struct {
	Port string `yaml:"port"`
}

// MQTTConfig defines MQTT client settings. Presence enables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id,omitempty"`
	Username    string `yaml:"username,omitempty"`
	Password    string `yaml:"password,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty"`
}

// SystemSettings holds the runtime-mutable tunables of the composition
// pipeline. dim_speed_ms and the dtw_* fields are hot-reloadable without
// restarting the daemon (see internal/scheduler periodic jobs).
type SystemSettings struct {
	ControlLoopHz int `yaml:"control_loop_hz"`

	DimSpeedMs           int     `yaml:"dim_speed_ms"`
	HoldThresholdSeconds float64 `yaml:"hold_threshold_seconds"`
	TapWindowMs          int     `yaml:"tap_window_ms"`

	FullBrightnessSeconds float64 `yaml:"full_brightness_seconds"`
	FullCCTSeconds        float64 `yaml:"full_cct_seconds"`
	DefaultEasing         string  `yaml:"default_easing"`

	DTWEnabled             bool    `yaml:"dtw_enabled"`
	DTWCurve               string  `yaml:"dtw_curve"` // linear, log, square, incandescent
	DTWMinCCT              int     `yaml:"dtw_min_cct"`
	DTWMaxCCT              int     `yaml:"dtw_max_cct"`
	DTWMinBrightness       float64 `yaml:"dtw_min_brightness"`
	DTWOverrideTimeoutSecs int     `yaml:"dtw_override_timeout_seconds"`
	DTWRefreshSeconds      float64 `yaml:"dtw_refresh_seconds"`

	BroadcastThrottleMs int `yaml:"broadcast_throttle_ms"`
}

// FixtureKind distinguishes how a fixture should be driven.
type FixtureKind string

const (
	FixtureSimpleDimmable FixtureKind = "simple_dimmable"
	FixtureTunableWhite   FixtureKind = "tunable_white"
	FixtureDimToWarm      FixtureKind = "dim_to_warm"
	FixtureNonDimmable    FixtureKind = "non_dimmable"
	FixtureOther          FixtureKind = "other"
)

// Chromaticity is a CIE 1931 xy point, used to describe a fixture's warm
// or cool emitter when known precisely (rather than assumed Planckian).
type Chromaticity struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

// FixtureConfig is the read-mostly description of one physical fixture.
type FixtureConfig struct {
	ID                 string        `yaml:"id"`
	DMXUniverse        int           `yaml:"dmx_universe"`
	DMXPrimaryChannel  int           `yaml:"dmx_primary_channel"`
	DMXSecondaryChannel *int         `yaml:"dmx_secondary_channel,omitempty"`
	Footprint          int           `yaml:"footprint"` // 1 or 2
	Kind               FixtureKind   `yaml:"kind"`

	CCTMinK int `yaml:"cct_min_k,omitempty"`
	CCTMaxK int `yaml:"cct_max_k,omitempty"`

	WarmXY    *Chromaticity `yaml:"warm_xy,omitempty"`
	CoolXY    *Chromaticity `yaml:"cool_xy,omitempty"`
	WarmLumens float64      `yaml:"warm_lumens,omitempty"`
	CoolLumens float64      `yaml:"cool_lumens,omitempty"`

	Gamma float64 `yaml:"gamma,omitempty"` // default 2.2

	DTWIgnore          bool `yaml:"dtw_ignore,omitempty"`
	DTWCCTMinOverride  *int `yaml:"dtw_cct_min_override,omitempty"`
	DTWCCTMaxOverride  *int `yaml:"dtw_cct_max_override,omitempty"`
	DefaultCCTK        *int `yaml:"default_cct_k,omitempty"`
}

// SupportsCCT reports whether the fixture has a second color channel.
func (f FixtureConfig) SupportsCCT() bool {
	return f.Footprint >= 2 || f.DMXSecondaryChannel != nil
}

// SleepLock is a nightly window during which the circadian job leaves the
// group untouched.
type SleepLock struct {
	Start    string `yaml:"start"` // "HH:MM"
	End      string `yaml:"end"`   // "HH:MM"
	Duration int    `yaml:"duration_minutes,omitempty"`
}

// GroupConfig is the read-mostly description of one fixture group.
type GroupConfig struct {
	ID                string     `yaml:"id"`
	Members           []string   `yaml:"members"` // fixture IDs
	CircadianProfileID string    `yaml:"circadian_profile_id,omitempty"`
	DefaultBrightness float64    `yaml:"default_brightness"`
	DefaultCCTK       *int       `yaml:"default_cct_k,omitempty"`
	DTWIgnore         bool       `yaml:"dtw_ignore,omitempty"`
	DTWCCTMinOverride *int       `yaml:"dtw_cct_min_override,omitempty"`
	DTWCCTMaxOverride *int       `yaml:"dtw_cct_max_override,omitempty"`
	SleepLock         *SleepLock `yaml:"sleep_lock,omitempty"`
}

// Keyframe is one point on a circadian profile's 24h ring.
type Keyframe struct {
	TimeOfDay  string  `yaml:"time_of_day"` // "HH:MM"
	Brightness float64 `yaml:"brightness"`  // 0..1
	CCTK       int     `yaml:"cct_k"`
}

// CircadianProfile is a cyclic ring of brightness/CCT keyframes.
type CircadianProfile struct {
	ID        string     `yaml:"id"`
	Keyframes []Keyframe `yaml:"keyframes"`
}

// SceneValue is one fixture's target within a scene.
type SceneValue struct {
	FixtureID          string   `yaml:"fixture_id"`
	TargetBrightness1000 *int   `yaml:"target_brightness_0_1000,omitempty"`
	TargetCCTK         *int     `yaml:"target_cct_k,omitempty"`
}

// Scene is a named, recallable collection of fixture targets.
type Scene struct {
	ID           string       `yaml:"id"`
	ScopeGroupID string       `yaml:"scope_group_id,omitempty"`
	Values       []SceneValue `yaml:"values"`
}

// SwitchModel selects which state machine drives a switch.
type SwitchModel string

const (
	SwitchRetractive      SwitchModel = "retractive"
	SwitchRotaryAbsolute  SwitchModel = "rotary_abs"
	SwitchPaddleComposite SwitchModel = "paddle_composite"
	SwitchSimple          SwitchModel = "switch_simple"
)

// DimmingCurve selects the rotary-switch response curve.
type DimmingCurve string

const (
	DimmingLinear      DimmingCurve = "linear"
	DimmingLogarithmic DimmingCurve = "logarithmic"
)

// TargetType names the kind of entity a switch or override addresses.
type TargetType string

const (
	TargetFixture TargetType = "fixture"
	TargetGroup   TargetType = "group"
)

// SwitchConfig is the read-mostly description of one physical input.
type SwitchConfig struct {
	ID               string       `yaml:"id"`
	Model            SwitchModel  `yaml:"model"`
	DebounceMs       int          `yaml:"debounce_ms,omitempty"`
	DimmingCurve     DimmingCurve `yaml:"dimming_curve,omitempty"`
	DigitalPin       *int         `yaml:"digital_pin,omitempty"`
	AnalogPin        *int         `yaml:"analog_pin,omitempty"`
	TargetType       TargetType   `yaml:"target_type"`
	TargetID         string       `yaml:"target_id"`
	DoubleTapSceneID string       `yaml:"double_tap_scene_id,omitempty"`
	InvertReading    bool         `yaml:"invert_reading,omitempty"`
}
