package config

import "slices"

// ConfigDiff describes what changed between two configs. Fields that can be
// applied to a running server are reported individually; everything else is
// listed in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	SynthesisChanged bool
	NewRate          float64
	NewPitch         float64

	NoticesChanged bool
	NewNotices     NoticesConfig

	// RestartRequired names the top-level sections whose changes only take
	// effect after a restart.
	RestartRequired []string
}

// Empty reports whether d holds no changes.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.SynthesisChanged && !d.NoticesChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Synthesis.Rate != new.Synthesis.Rate || old.Synthesis.Pitch != new.Synthesis.Pitch {
		d.SynthesisChanged = true
		d.NewRate = new.Synthesis.Rate
		d.NewPitch = new.Synthesis.Pitch
	}

	if old.Notices != new.Notices {
		d.NoticesChanged = true
		d.NewNotices = new.Notices
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		!slices.Equal(old.Server.AllowedOrigins, new.Server.AllowedOrigins) ||
		!tlsEqual(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if old.Platform != new.Platform {
		d.RestartRequired = append(d.RestartRequired, "platform")
	}
	if !entryEqual(old.Capture.Device.STT, new.Capture.Device.STT) ||
		old.Capture.Device.SampleRate != new.Capture.Device.SampleRate ||
		old.Capture.Device.MaxDuration != new.Capture.Device.MaxDuration {
		d.RestartRequired = append(d.RestartRequired, "capture")
	}
	if !entryEqual(old.Synthesis.Device, new.Synthesis.Device) {
		d.RestartRequired = append(d.RestartRequired, "synthesis.device")
	}
	if !entryEqual(old.Translate, new.Translate) {
		d.RestartRequired = append(d.RestartRequired, "translate")
	}
	if !fallbacksEqual(old.Fallbacks, new.Fallbacks) {
		d.RestartRequired = append(d.RestartRequired, "fallbacks")
	}
	if old.Preferences != new.Preferences {
		d.RestartRequired = append(d.RestartRequired, "preferences")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}

	return d
}

func tlsEqual(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func fallbacksEqual(a, b FallbacksConfig) bool {
	return a.MaxFailures == b.MaxFailures && a.ResetTimeout == b.ResetTimeout &&
		slices.EqualFunc(a.Translate, b.Translate, entryEqual) &&
		slices.EqualFunc(a.STT, b.STT, entryEqual) &&
		slices.EqualFunc(a.TTS, b.TTS, entryEqual)
}

// entryEqual compares provider entries. Options are compared by key set and
// scalar value only.
func entryEqual(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL ||
		a.Model != b.Model || a.Timeout != b.Timeout || len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || !scalarEqual(av, bv) {
			return false
		}
	}
	return true
}

func scalarEqual(a, b any) bool {
	switch a.(type) {
	case map[string]any, []any:
		// Nested values are treated as changed.
		return false
	}
	switch b.(type) {
	case map[string]any, []any:
		return false
	}
	return a == b
}
