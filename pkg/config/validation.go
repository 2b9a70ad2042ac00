package config

import (
	"errors"
	"fmt"
	"net/netip"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate checks struct tags. Field names in its errors are the config file
// keys (mapstructure tags), not the Go field names.
var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
}

// Validate validates the configuration using struct tags and custom rules.
//
// Struct tags cover single fields. validateCustomRules covers rules spanning
// several fields and the type-specific catalog sections, which are plain maps
// until a factory decodes them.
//
// Log level normalization is handled in ApplyDefaults; validation accepts
// both cases.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateCustomRules(cfg)
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	t := cfg.Transfer
	if t.InitialBlockSize < t.BlockStep || t.InitialBlockSize > t.MaxBlockSize {
		return fmt.Errorf("transfer: block sizes must satisfy block_step (%d) <= initial_block_size (%d) <= max_block_size (%d)",
			t.BlockStep, t.InitialBlockSize, t.MaxBlockSize)
	}

	if t.RateBurst != 0 && t.RateLimit == 0 {
		return fmt.Errorf("transfer: rate_burst is set but rate_limit is 0 (unlimited)")
	}

	switch cfg.Catalog.Type {
	case "badger":
		if path, _ := cfg.Catalog.Badger["db_path"].(string); path == "" {
			return fmt.Errorf("catalog.badger: db_path is required")
		}
	case "memory":
		return validateMemoryCatalog(cfg.Catalog.Memory)
	}

	return nil
}

// validateMemoryCatalog checks the seed locations and host addresses of the
// memory catalog.
func validateMemoryCatalog(options map[string]any) error {
	opts, err := decodeMemoryCatalogOptions(options)
	if err != nil {
		return fmt.Errorf("catalog.memory: %w", err)
	}

	for i, loc := range opts.Locations {
		if loc.Group == "" || loc.Host == "" || loc.Directory == "" {
			return fmt.Errorf("catalog.memory.locations[%d]: group, host and directory are required", i)
		}
	}
	for host, ip := range opts.HostIPs {
		if _, err := netip.ParseAddr(ip); err != nil {
			return fmt.Errorf("catalog.memory.host_ips.%s: %q is not an IP address", host, ip)
		}
	}
	return nil
}

// formatValidationError converts validator errors into messages naming the
// config keys, e.g. "transfer.max_resync_attempts: must satisfy gte=1".
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err
	}

	errs := make([]error, 0, len(validationErrs))
	for _, e := range validationErrs {
		key := e.Namespace()
		if _, rest, ok := strings.Cut(key, "."); ok {
			key = rest
		}

		rule := e.Tag()
		if e.Param() != "" {
			rule += "=" + e.Param()
		}
		errs = append(errs, fmt.Errorf("%s: must satisfy %s (value: %v)", key, rule, e.Value()))
	}
	return errors.Join(errs...)
}
