package config_test

import (
	"testing"
	"time"

	"github.com/dukex/mailflow/pkg/config"
	"github.com/stretchr/testify/assert"
)

func validEngine() config.Engine {
	return config.Engine{
		PollInterval:       30 * time.Second,
		ClaimLimit:         100,
		Workers:            10,
		Lease:              15 * time.Minute,
		MaxSteps:           500,
		RetryDelay:         time.Minute,
		LockTTL:            10 * time.Second,
		UnsubscribeSecret:  "0123456789abcdef",
		UnsubscribeBaseURL: "https://mail.example.com/unsubscribe",
	}
}

func TestEngine_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Engine)
		valid  bool
	}{
		{"defaults", func(*config.Engine) {}, true},
		{"sub-second poll", func(c *config.Engine) { c.PollInterval = 100 * time.Millisecond }, false},
		{"no workers", func(c *config.Engine) { c.Workers = 0 }, false},
		{"short secret", func(c *config.Engine) { c.UnsubscribeSecret = "short" }, false},
		{"bad base url", func(c *config.Engine) { c.UnsubscribeBaseURL = "not a url" }, false},
		{"lease disabled", func(c *config.Engine) { c.Lease = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := validEngine()
			tt.mutate(&c)

			err := c.Validate()
			assert.Equal(t, tt.valid, err == nil, "%v", err)
		})
	}
}

func TestDispatcher_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		cfg   config.Dispatcher
		valid bool
	}{
		{"log transport", config.Dispatcher{BatchSize: 50, Interval: 10 * time.Second, Transport: "log"}, true},
		{"http transport", config.Dispatcher{BatchSize: 50, Interval: 10 * time.Second, Transport: "http", TransportURL: "https://esp.example.com/batch"}, true},
		{"http without url", config.Dispatcher{BatchSize: 50, Interval: 10 * time.Second, Transport: "http"}, false},
		{"unknown transport", config.Dispatcher{BatchSize: 50, Interval: 10 * time.Second, Transport: "smtp"}, false},
		{"zero batch", config.Dispatcher{Interval: 10 * time.Second, Transport: "log"}, false},
		{"lease disabled", config.Dispatcher{BatchSize: 50, Interval: 10 * time.Second, Transport: "log"}, true},
		{"negative lease", config.Dispatcher{BatchSize: 50, Interval: 10 * time.Second, Lease: -time.Minute, Transport: "log"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.cfg.Validate()
			assert.Equal(t, tt.valid, err == nil, "%v", err)
		})
	}
}
