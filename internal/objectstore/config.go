// Package objectstore mirrors finished artifacts to S3-compatible object
// storage through the MinIO client. Mirroring is optional: the local output
// directory stays the source of truth for resumability.
package objectstore

import (
	"errors"
	"strings"
)

// Config describes the mirror target. Credentials are filled from the
// environment by the config package and never read from YAML.
type Config struct {
	Endpoint  string `yaml:"endpoint"` // host:port, no scheme.
	Bucket    string `yaml:"bucket"`
	Prefix    string `yaml:"prefix"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// DefaultConfig returns a disabled mirror configuration.
func DefaultConfig() Config {
	return Config{Region: "us-east-1"}
}

// Enabled reports whether a mirror endpoint was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// Validate checks that an enabled mirror is fully specified.
func (c Config) Validate() error {
	if !c.Enabled() {
		return errors.New("s3 endpoint is required")
	}
	if strings.Contains(c.Endpoint, "://") {
		return errors.New("s3 endpoint must be host[:port] without a scheme (use --s3-ssl for https)")
	}
	if strings.TrimSpace(c.Bucket) == "" {
		return errors.New("s3 bucket is required when an endpoint is set")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return errors.New("s3 access key and secret key must be set together")
	}
	return nil
}
