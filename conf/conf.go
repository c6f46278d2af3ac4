// Package conf loads gateway configuration from a YAML file, filling
// omitted fields with working defaults.
package conf

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bind address for the SIP listeners.
	Host string `yaml:"host"`
	// Address advertised in Via/Contact. Autodetected when empty.
	MyIP    string `yaml:"my_ip"`
	SipPort int    `yaml:"sip_port"`
	// Control plane (operator API + metrics) port.
	HTTPPort int `yaml:"http_port"`
	// Optional WebSocket SIP listener. 0 disables it.
	WSPort int `yaml:"ws_port"`

	Domain    string `yaml:"domain"`
	SipID     string `yaml:"sip_id"`
	Password  string `yaml:"password"`
	Algorithm string `yaml:"algorithm"`
	Nonce     string `yaml:"nonce"`
	Realm     string `yaml:"realm"`

	SocketRecvBufferSize int `yaml:"socket_recv_buffer_size"`

	StreamTimeoutSeconds int `yaml:"stream_timeout_seconds"`
	DeviceTimeoutSeconds int `yaml:"device_timeout_seconds"`

	StoreEngine string `yaml:"store_engine"`

	// Base URL of the media port allocator service. When empty the gateway
	// uses the static allocator with media_ip/media_port.
	MediaURL  string `yaml:"media_url"`
	MediaIP   string `yaml:"media_ip"`
	MediaPort int    `yaml:"media_port"`
}

// Load reads path and applies defaults. A missing file is not an error,
// the default configuration is returned.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.SipPort == 0 {
		cfg.SipPort = 5060
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 6070
	}
	if cfg.Domain == "" {
		cfg.Domain = "3402000000"
	}
	if cfg.SipID == "" {
		cfg.SipID = "34020000002000000001"
	}
	if cfg.Password == "" {
		cfg.Password = "d383cf85b0e8ce0b"
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = "md5"
	}
	if cfg.Nonce == "" {
		cfg.Nonce = "f89d0eaccaf1c90453e2f84688ec800f05"
	}
	if cfg.Realm == "" {
		cfg.Realm = "gbt@future_oriented.com"
	}
	if cfg.SocketRecvBufferSize == 0 {
		cfg.SocketRecvBufferSize = 65535
	}
	if cfg.StreamTimeoutSeconds == 0 {
		cfg.StreamTimeoutSeconds = 180
	}
	if cfg.DeviceTimeoutSeconds == 0 {
		cfg.DeviceTimeoutSeconds = 300
	}
	if cfg.StoreEngine == "" {
		cfg.StoreEngine = "memory"
	}
	if cfg.MyIP == "" {
		if ip, err := resolveLocalIP(); err == nil {
			cfg.MyIP = ip
		} else {
			cfg.MyIP = "127.0.0.1"
		}
	}
	// Static allocator fallbacks, used when media_url is unset.
	if cfg.MediaIP == "" {
		cfg.MediaIP = cfg.MyIP
	}
	if cfg.MediaPort == 0 {
		cfg.MediaPort = 20000
	}
}

// SipAddr is the host:port the SIP listeners bind.
func (cfg *Config) SipAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.SipPort)
}

// HTTPAddr is the host:port of the control plane.
func (cfg *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", cfg.Host, cfg.HTTPPort)
}

// resolveLocalIP returns the first non-loopback unicast IPv4 address.
func resolveLocalIP() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip4 := ipnet.IP.To4(); ip4 != nil && !ip4.IsLoopback() {
				return ip4.String(), nil
			}
		}
	}
	return "", fmt.Errorf("no usable interface address")
}
