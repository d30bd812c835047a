package config

import (
	"fmt"

	"mediapool/internal/services"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateUsers(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.MediaPoolRoot == "" {
		return missingKey("paths.media_pool_root")
	}
	if c.Paths.ProxyPoolRoot == "" {
		return missingKey("paths.proxy_pool_root")
	}
	return nil
}

func (c *Config) validateUsers() error {
	if len(c.Users.Keymap) == 0 {
		return missingKey("users.keymap")
	}
	if len(c.Users.DestRoots) == 0 {
		return missingKey("users.dest_roots")
	}
	return nil
}

func (c *Config) validateSync() error {
	switch c.Sync.Policy {
	case PolicyPrompt, PolicyAlways, PolicyNever:
	default:
		return services.Wrap(services.ErrValidation, "config", "validate",
			fmt.Sprintf("sync.policy must be one of %s, %s, %s", PolicyPrompt, PolicyAlways, PolicyNever), nil)
	}
	return nil
}

func missingKey(key string) error {
	defaultPath, err := DefaultConfigPath()
	if err != nil {
		defaultPath = "~/.config/mediapool/config.toml"
	}
	return services.Wrap(services.ErrConfigMissing, "config", "validate",
		fmt.Sprintf("%s must be set; edit %s (create with 'mediapool config init')", key, defaultPath), nil)
}
