package server

import (
	"net/http"
	"strconv"
	"time"
)

type Option interface {
	apply(*config)
}

type optionFunc func(c *config)

func (f optionFunc) apply(c *config) { f(c) }

// config defines fields used for configuring Server instance
type config struct {
	httpServer *http.Server
	uploadDir  string
}

// EnvConfig defines fields used for parsing from environment variables
type EnvConfig struct {
	Host      string `env:"HOST" envDefault:"0.0.0.0"`
	Port      uint16 `env:"PORT" envDefault:"9000"`
	UploadDir string `env:"UPLOAD_DIR" envDefault:"uploads"`
}

// WithEnvConfig enables processing exported EnvConfig struct to act as a source of config parameters
func WithEnvConfig(cfg EnvConfig) Option {
	return optionFunc(func(c *config) {
		c.httpServer.Addr = cfg.Host + ":" + strconv.FormatUint(uint64(cfg.Port), 10)
		if cfg.UploadDir != "" {
			c.uploadDir = cfg.UploadDir
		}
	})
}

// ReadTimeout sets read timeout for http.Server
func ReadTimeout(d time.Duration) Option {
	return optionFunc(func(c *config) {
		c.httpServer.ReadTimeout = d
	})
}

// UploadDir overrides the directory uploaded images are stored in
func UploadDir(dir string) Option {
	return optionFunc(func(c *config) {
		c.uploadDir = dir
	})
}
