package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Validate rejects configs that would misbehave at runtime. It is wired as
// the Watch() validator so a bad edit never replaces a good running config.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if _, err := ParseDurationField("session.reconnect_delay", c.Session.ReconnectDelay); err != nil {
		return err
	}
	if c.Session.ReconnectMax < 0 {
		return errors.New("session.reconnect_max: must be >= 0")
	}
	if f := c.Session.BackoffFactor; f != 0 && f < 1 {
		return errors.New("session.backoff_factor: must be >= 1")
	}

	pmin, err := ParseDurationField("dispatch.pause_min", c.Dispatch.PauseMin)
	if err != nil {
		return err
	}
	pmax, err := ParseDurationField("dispatch.pause_max", c.Dispatch.PauseMax)
	if err != nil {
		return err
	}
	if pmin > 0 && pmax > 0 && pmin > pmax {
		return errors.New("dispatch: pause_min exceeds pause_max")
	}
	if c.Dispatch.RatePerSec < 0 {
		return errors.New("dispatch.rate_per_sec: must be >= 0")
	}

	if r := c.Reply; r != nil && r.Enabled {
		if strings.TrimSpace(r.URL) == "" {
			return errors.New("reply: enabled but url is empty")
		}
		if _, err := ParseDurationField("reply.timeout", r.Timeout); err != nil {
			return err
		}
	}

	if _, err := ParseDurationField("contacts.busy_timeout", c.Contacts.BusyTimeout); err != nil {
		return err
	}

	for i, camp := range c.Campaigns {
		if strings.TrimSpace(camp.Name) == "" {
			return fmt.Errorf("campaigns[%d]: name is required", i)
		}
		if camp.Enabled && strings.TrimSpace(camp.Schedule) == "" {
			return fmt.Errorf("campaigns[%d] (%s): schedule is required", i, camp.Name)
		}
		if camp.Enabled && strings.TrimSpace(camp.Template) == "" {
			return fmt.Errorf("campaigns[%d] (%s): template is required", i, camp.Name)
		}
	}

	if tz := strings.TrimSpace(c.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("timezone: %w", err)
		}
	}
	return nil
}
