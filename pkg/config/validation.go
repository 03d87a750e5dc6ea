package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// Log level normalization is handled in ApplyDefaults, so validation
// accepts both uppercase and lowercase levels.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	return validateCustomRules(cfg)
}

// validateCustomRules performs validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.WebDAV.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port == cfg.Adapters.WebDAV.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the webdav adapter", cfg.Server.Metrics.Port)
	}

	// Backend sections are decoded lazily by the store factory; check the
	// selected one now so a typo fails at startup.
	if _, err := decodeStoreOptions(&cfg.Paginate.Store); err != nil {
		return fmt.Errorf("paginate.store.%s: %w", cfg.Paginate.Store.Type, err)
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
