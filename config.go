package talyn

import "time"

// Config holds client options
type Config interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
	GetCredentialsPath() string
}

// SimpleConfig is a plain-struct Config for programs that don't bring their
// own configuration layer.
type SimpleConfig struct {
	BaseURL         string
	RequestTimeout  time.Duration
	CredentialsPath string
}

var _ Config = SimpleConfig{}

func (c SimpleConfig) GetBaseURL() string {
	return c.BaseURL
}

func (c SimpleConfig) GetRequestTimeout() time.Duration {
	if c.RequestTimeout <= 0 {
		return 15 * time.Second
	}
	return c.RequestTimeout
}

func (c SimpleConfig) GetCredentialsPath() string {
	if c.CredentialsPath == "" {
		return "talyn-credentials.db"
	}
	return c.CredentialsPath
}
