package config

import "errors"

var (
	ErrParsingConfig = errors.New("failed to parse environment variables into config")
	ErrDotEnv        = errors.New("failed to load dotenv file")
)
