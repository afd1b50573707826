package main

import "github.com/benaskins/joule/internal/config"

// resolvedConfigPath returns the --config flag value or ~/.joule/config.yaml.
func resolvedConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}
