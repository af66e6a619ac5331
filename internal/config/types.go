package config

type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`

	// Session controls the reconnect policy of the connection controller.
	Session SessionConfig `json:"session"`

	// Dispatch controls bulk-send pacing. The pause range is a deliberate
	// abuse-heuristics control; don't zero it against a production account.
	Dispatch DispatchConfig `json:"dispatch"`

	// Reply configures the optional auto-reply oracle.
	Reply *ReplyConfig `json:"reply,omitempty"`

	// Contacts configures the optional external contact provider.
	Contacts ContactsConfig `json:"contacts"`

	// Campaigns are cron-scheduled broadcast runs.
	Campaigns []CampaignConfig `json:"campaigns,omitempty"`

	// Timezone is the IANA zone used for campaign schedules, e.g. "Asia/Jakarta".
	Timezone string `json:"timezone,omitempty"`
}

type LoggingConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    FileLogConfig `json:"file"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// WhatsAppConfig configures the connection driver and phone canonicalization.
type WhatsAppConfig struct {
	// SessionDB is the sqlite file holding device credentials; a fresh file
	// triggers the QR pairing flow.
	SessionDB string `json:"session_db"`

	// TrunkPrefix/CountryPrefix drive phone normalization
	// (defaults "0" -> "62").
	TrunkPrefix    string `json:"trunk_prefix,omitempty"`
	CountryPrefix  string `json:"country_prefix,omitempty"`
	MinPhoneDigits int    `json:"min_phone_digits,omitempty"`

	// Autostart connects the session on process start instead of waiting
	// for an operator action.
	Autostart bool `json:"autostart"`

	// TerminalQR additionally renders auth challenges as a terminal QR code.
	TerminalQR bool `json:"terminal_qr,omitempty"`

	LogLevel string `json:"log_level,omitempty"` // whatsmeow's own logger
}

// SessionConfig holds the reconnect policy.
// Durations are Go duration strings (e.g. "5s").
type SessionConfig struct {
	ReconnectMax   int     `json:"reconnect_max,omitempty"`
	ReconnectDelay string  `json:"reconnect_delay,omitempty"`
	BackoffFactor  float64 `json:"backoff_factor,omitempty"`
}

// DispatchConfig holds bulk-send pacing.
// Durations are Go duration strings (e.g. "2500ms", "5s").
type DispatchConfig struct {
	PauseMin   string `json:"pause_min,omitempty"`
	PauseMax   string `json:"pause_max,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

type ReplyConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
	Fallback string `json:"fallback,omitempty"`
}

// ContactsConfig selects the external contact provider.
// Driver "" or "none" disables it; "sqlite" reads from Path.
type ContactsConfig struct {
	Driver      string `json:"driver,omitempty"`
	Path        string `json:"path,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type CampaignConfig struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"` // cron spec, 5-field
	Template string `json:"template"`
	Enabled  bool   `json:"enabled"`
}
