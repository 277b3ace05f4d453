package config

import "io"

// LoadFromEnv loads .env (dev builds only), then parses args against the
// process environment.
func LoadFromEnv(args []string, output io.Writer) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return Load(args, FromEnviron(), output)
}
