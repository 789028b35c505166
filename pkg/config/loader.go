package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"

	apperrors "github.com/utafrali/searchsync/pkg/errors"
	"github.com/utafrali/searchsync/pkg/validator"
)

// Load parses environment variables into cfg and checks its `validate`
// tags. Both unparsable values and failed constraints are reported as
// BAD_CONFIGURATION errors naming the offending variable or field.
//
// Example:
//
//	type Config struct {
//	    Port      int    `env:"HTTP_PORT" envDefault:"8080" validate:"gte=1,lte=65535"`
//	    BatchSize int    `env:"BATCH_SIZE" envDefault:"500" validate:"gte=1"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return apperrors.BadConfiguration(fmt.Sprintf("parse config: %v", err))
	}
	if err := validator.Validate(cfg); err != nil {
		return apperrors.BadConfiguration(err.Error())
	}
	return nil
}
