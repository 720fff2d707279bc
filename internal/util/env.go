package util

import "os"

// EnvOrDefault reads an environment variable, falling back when it is unset
// or empty. Flag defaults in main are sourced through this so every setting
// can come from either the environment or the command line.
func EnvOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
