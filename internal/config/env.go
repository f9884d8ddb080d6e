package config

import (
	"fmt"
	"strconv"
)

// Environment variables read by ApplyEnv.
const (
	EnvPartitions     = "NOTEBOOK_PARTITIONS"
	EnvMinioAccessKey = "NBISO_MINIO_ACCESS_KEY"
	EnvMinioSecretKey = "NBISO_MINIO_SECRET_KEY"
)

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overlays environment variables onto the config.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	n, err := envInt(lookup, EnvPartitions, c.Partitions)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	c.Partitions = n
	c.Artifacts.AccessKey = envString(lookup, EnvMinioAccessKey, c.Artifacts.AccessKey)
	c.Artifacts.SecretKey = envString(lookup, EnvMinioSecretKey, c.Artifacts.SecretKey)
	return nil
}

func envString(lookup LookupFunc, key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func envInt(lookup LookupFunc, key string, def int) (int, error) {
	if v, ok := lookup(key); ok {
		i, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("parse %s: %w", key, err)
		}
		return i, nil
	}
	return def, nil
}
