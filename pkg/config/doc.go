// Package config loads typed configuration from the environment.
//
// LoadDotEnv seeds the process environment from dotenv files (github.com/joho/godotenv);
// Load parses it into a struct through github.com/caarlos0/env/v11 field tags.
// Each struct type is parsed once and cached for the life of the process.
//
//	if err := config.LoadDotEnv(); err != nil {
//		return err
//	}
//	cfg, err := config.Load[AppConfig]()
package config
