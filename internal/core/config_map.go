package core

import (
	"time"

	"wablast/internal/config"
	"wablast/internal/dispatch"
	"wablast/internal/phone"
	"wablast/internal/reply"
	"wablast/internal/session"
	"wablast/internal/storage"
	logx "wablast/pkg/logx"
)

// Mapping helpers translate the file config (string durations, optional
// sections) into the typed configs each component takes.

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapNormalizer(cfg *config.Config) phone.Normalizer {
	n := phone.Default()
	if cfg.WhatsApp.TrunkPrefix != "" {
		n.TrunkPrefix = cfg.WhatsApp.TrunkPrefix
	}
	if cfg.WhatsApp.CountryPrefix != "" {
		n.CountryPrefix = cfg.WhatsApp.CountryPrefix
	}
	if cfg.WhatsApp.MinPhoneDigits > 0 {
		n.MinDigits = cfg.WhatsApp.MinPhoneDigits
	}
	return n
}

func mapRetryPolicy(cfg *config.Config) (session.RetryPolicy, error) {
	p := session.DefaultRetryPolicy()
	if cfg.Session.ReconnectMax > 0 {
		p.MaxAttempts = cfg.Session.ReconnectMax
	}
	d, err := config.ParseDurationOrDefault("session.reconnect_delay", cfg.Session.ReconnectDelay, p.Delay)
	if err != nil {
		return session.RetryPolicy{}, err
	}
	p.Delay = d
	if cfg.Session.BackoffFactor >= 1 {
		p.BackoffFactor = cfg.Session.BackoffFactor
	}
	return p, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	def := dispatch.DefaultConfig()
	pmin, err := config.ParseDurationOrDefault("dispatch.pause_min", cfg.Dispatch.PauseMin, def.PauseMin)
	if err != nil {
		return dispatch.Config{}, err
	}
	pmax, err := config.ParseDurationOrDefault("dispatch.pause_max", cfg.Dispatch.PauseMax, def.PauseMax)
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		PauseMin:   pmin,
		PauseMax:   pmax,
		RatePerSec: cfg.Dispatch.RatePerSec,
	}, nil
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	busy, err := config.ParseDurationOrDefault("contacts.busy_timeout", cfg.Contacts.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      cfg.Contacts.Driver,
		Path:        cfg.Contacts.Path,
		BusyTimeout: busy,
	}, nil
}

// mapResponder returns nil when auto-reply is disabled.
func mapResponder(cfg *config.Config, log logx.Logger) (reply.Responder, error) {
	r := cfg.Reply
	if r == nil || !r.Enabled {
		return nil, nil
	}
	timeout, err := config.ParseDurationOrDefault("reply.timeout", r.Timeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	return reply.NewHTTP(reply.Config{
		URL:      r.URL,
		Timeout:  timeout,
		Fallback: r.Fallback,
	}, log), nil
}
