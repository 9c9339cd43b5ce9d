// Package config handles loading and validating tempkey configuration.
//
// This package manages:
//   - Loading configuration from an optional YAML file
//   - Overriding with environment variables (including the bare BOT_TOKEN,
//     GITHUB_TOKEN, ADMIN_ID and PORT names used by existing deployments)
//   - Validation of required fields per replication strategy
//   - Default value handling
//
// Security Considerations:
//   - Tokens should be set via environment variables, never committed in YAML
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Replication.Strategy)
package config
