// Package config handles loading and validating the edge agent configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling
//
// The broker endpoint and its credentials are deliberately absent: they are
// fetched at run time from the configuration store. This file only says how
// to reach that store and how to interpret what it returns.
//
// Security Considerations:
//   - Store passwords and tokens should be set via environment variables
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.CommandTopic())
package config
