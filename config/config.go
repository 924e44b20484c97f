// Package config holds the settings of rpc-server and rpc-client.
//
// Settings come from three layers, later ones winning: the defaults below, an
// optional YAML file, then command-line flags and environment variables.
//
//	addr: 127.0.0.1:9090
//	request_timeout: 5s
//	store: etcd
//	etcd_endpoints: [127.0.0.1:2379]
//	log:
//	  level: debug
package config

import (
	"io"
	"os"
	"time"

	"contract-rpc/codec"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory = "memory"
	StoreEtcd   = "etcd"
)

type Log struct {
	Level       string `yaml:"level"`       // debug, info, warn, error
	Development bool   `yaml:"development"` // Console output instead of JSON
}

type Server struct {
	Addr            string        `yaml:"addr"`
	RequestTimeout  time.Duration `yaml:"request_timeout"` // 0 disables
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	RateLimit       float64       `yaml:"rate_limit"` // Calls per second, 0 disables
	RateBurst       int           `yaml:"rate_burst"`
	Store           string        `yaml:"store"`
	EtcdEndpoints   []string      `yaml:"etcd_endpoints"`
	EtcdDialTimeout time.Duration `yaml:"etcd_dial_timeout"`
	OTLPEndpoint    string        `yaml:"otlp_endpoint"` // Empty disables tracing export
	Log             Log           `yaml:"log"`
}

type Client struct {
	Addr         string        `yaml:"addr"`
	Codec        string        `yaml:"codec"`
	CallTimeout  time.Duration `yaml:"call_timeout"` // 0 disables
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	DialTries    uint          `yaml:"dial_tries"`
	Heartbeat    time.Duration `yaml:"heartbeat"` // 0 disables
	OTLPEndpoint string        `yaml:"otlp_endpoint"`
	Log          Log           `yaml:"log"`
}

func DefaultServer() Server {
	return Server{
		Addr:            "127.0.0.1:9090",
		RequestTimeout:  5 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		RateBurst:       100,
		Store:           StoreMemory,
		EtcdDialTimeout: 5 * time.Second,
		Log:             Log{Level: "info"},
	}
}

func DefaultClient() Client {
	return Client{
		Addr:        "127.0.0.1:9090",
		Codec:       codec.CodecTypeJSON.String(),
		CallTimeout: 10 * time.Second,
		DialTimeout: 5 * time.Second,
		DialTries:   3,
		Heartbeat:   30 * time.Second,
		Log:         Log{Level: "warn"},
	}
}

// Load decodes the YAML file at path into v, over whatever v already holds.
// Unknown keys are an error. An empty path is a no-op.
func Load(path string, v any) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open config")
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.Wrapf(err, "parse config %s", path)
	}
	return nil
}

func (s *Server) Validate() error {
	if s.Addr == "" {
		return errors.New("server: addr is required")
	}
	if s.RequestTimeout < 0 || s.ShutdownTimeout < 0 {
		return errors.New("server: timeouts must not be negative")
	}
	if s.RateLimit < 0 {
		return errors.Errorf("server: invalid rate limit %v", s.RateLimit)
	}
	if s.RateLimit > 0 && s.RateBurst <= 0 {
		return errors.New("server: rate_burst must be positive when rate_limit is set")
	}
	switch s.Store {
	case StoreMemory:
	case StoreEtcd:
		if len(s.EtcdEndpoints) == 0 {
			return errors.New("server: etcd store needs etcd_endpoints")
		}
	default:
		return errors.Errorf("server: unknown store %q", s.Store)
	}
	return s.Log.validate()
}

func (c *Client) Validate() error {
	if c.Addr == "" {
		return errors.New("client: addr is required")
	}
	if _, err := codec.ParseCodecType(c.Codec); err != nil {
		return errors.WithMessage(err, "client")
	}
	if c.CallTimeout < 0 || c.DialTimeout < 0 || c.Heartbeat < 0 {
		return errors.New("client: durations must not be negative")
	}
	return c.Log.validate()
}

func (l *Log) validate() error {
	if _, err := parseLevel(l.Level); err != nil {
		return err
	}
	return nil
}
