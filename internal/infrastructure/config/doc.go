// Package config handles loading and validating ubiexport configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Loading .env files (godotenv) for local credentials
//   - Overriding with UBIEXPORT_* environment variables
//   - Validation of required fields
//
// Security Considerations:
//   - The Ubidots token should come from the environment, a .env file, or
//     the interactive prompt rather than a committed config file
//   - The config file should have restricted permissions (0600)
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Ubidots.DeviceType)
package config
