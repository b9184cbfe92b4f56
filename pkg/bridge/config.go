package bridge

// Config points the bridge at its data directory and the user-driven
// settings file. Only the settings file is live-reloaded.
type Config struct {
	DataDir        string `json:"dataDir"`
	SettingsConfig string `json:"settingsConfig"`
	MaxControllers int    `json:"maxControllers"`
}

// Settings is the live-reloaded part of the configuration.
type Settings struct {
	// PlayerLEDs overrides the LED pattern per player slot (raw pattern
	// bytes, bits 4-7). Empty entries keep the default one-LED-per-player
	// assignment.
	PlayerLEDs []uint8 `json:"playerLeds"`
}
