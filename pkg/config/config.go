// Package config gathers the tunables of the mailflow binaries.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Engine configures the worker: scheduler polling, step execution and
// enrollment locking.
type Engine struct {
	PollInterval time.Duration `validate:"gte=1000000000"`
	ClaimLimit   int           `validate:"gte=1,lte=10000"`
	Workers      int           `validate:"gte=1,lte=1000"`
	Lease        time.Duration `validate:"gte=0"`
	MaxSteps     int           `validate:"gte=1"`
	RetryDelay   time.Duration `validate:"gte=0"`
	LockTTL      time.Duration `validate:"gte=0"`

	UnsubscribeSecret  string `validate:"required,min=16"`
	UnsubscribeBaseURL string `validate:"required,url"`

	// WebhookTimeout bounds webhook and notify node requests.
	WebhookTimeout time.Duration `validate:"gte=0"`
	SplitSeed      uint64
}

// Dispatcher configures the batch dispatcher and its transport.
type Dispatcher struct {
	BatchSize int           `validate:"gte=1,lte=1000"`
	Interval  time.Duration `validate:"gte=1000000000"`
	Lease     time.Duration `validate:"gte=0"`

	Transport        string        `validate:"required,oneof=log http"`
	TransportURL     string        `validate:"required_if=Transport http,omitempty,url"`
	TransportToken   string
	TransportTimeout time.Duration `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func (c Engine) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}

	return nil
}

func (c Dispatcher) Validate() error {
	err := validate.Struct(c)
	if err != nil {
		return fmt.Errorf("invalid dispatcher config: %w", err)
	}

	return nil
}
