// Package config handles loading and validating PrintWatch configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading the access level table and users, inline or from a separate users file
//   - Overriding with PRINTWATCH_* environment variables
//   - Validation of required fields, including the static/dynamic printer address rules
//
// Security Considerations:
//   - The bot token, printer key and JWT secret should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	fmt.Println(cfg.Printer.MAC)
package config
