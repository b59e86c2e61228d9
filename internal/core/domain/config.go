package domain

import (
	"fmt"
	"time"
)

// ConnectionType identifies which transport a user's database is reached
// over. The values double as wire names in the config API.
type ConnectionType string

const (
	ConnectionDirect    ConnectionType = "postgresql"
	ConnectionSSH       ConnectionType = "ssh"
	ConnectionWireguard ConnectionType = "wireguard"
)

// Valid reports whether t is one of the supported connection types.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnectionDirect, ConnectionSSH, ConnectionWireguard:
		return true
	}
	return false
}

// ConnectionConfig is a user's decrypted connection configuration.
// Exactly one variant is set, selected by Type.
type ConnectionConfig struct {
	Type      ConnectionType
	Direct    *DirectConfig
	SSH       *SSHConfig
	Wireguard *WireguardConfig
}

// DirectConfig connects straight to a reachable Postgres instance.
type DirectConfig struct {
	DatabaseURL string
}

// SSHConfig reaches the database through an SSH tunnel. DatabaseURL
// describes the database as seen from the SSH host; HostKey is the
// pinned public key of the SSH host in authorized_keys format.
type SSHConfig struct {
	Host        string
	Port        int
	User        string
	KeyPath     string
	HostKey     string
	DatabaseURL string
}

// WireguardConfig holds a tunnel definition for an already-routed VPN
// plus the database URL reachable inside it. The broker does not manage
// the VPN interface itself; it connects to InternalDatabaseURL directly.
type WireguardConfig struct {
	TunnelDefinition    string
	InternalDatabaseURL string
}

// ConfigStatus is the sanitized view of a stored configuration. It never
// carries secrets.
type ConfigStatus struct {
	ConnectionType ConnectionType `json:"connection_type"`
	ConfiguredAt   time.Time      `json:"configured_at"`
}

// Validate checks that the variant selected by Type is present and
// carries its required fields.
func (c *ConnectionConfig) Validate() error {
	switch c.Type {
	case ConnectionDirect:
		if c.Direct == nil || c.Direct.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for a postgresql connection")
		}
	case ConnectionSSH:
		if c.SSH == nil {
			return fmt.Errorf("ssh_config is required for an ssh connection")
		}
		if c.SSH.Host == "" || c.SSH.User == "" || c.SSH.KeyPath == "" {
			return fmt.Errorf("ssh_config requires host, user, and key_path")
		}
		if c.SSH.Port <= 0 || c.SSH.Port > 65535 {
			return fmt.Errorf("ssh_config port %d is out of range", c.SSH.Port)
		}
		if c.SSH.HostKey == "" {
			return fmt.Errorf("ssh_config requires a host_key pin")
		}
		if c.SSH.DatabaseURL == "" {
			return fmt.Errorf("database_url is required for an ssh connection")
		}
	case ConnectionWireguard:
		if c.Wireguard == nil || c.Wireguard.InternalDatabaseURL == "" {
			return fmt.Errorf("wireguard_config with internal_db_url is required for a wireguard connection")
		}
		if err := ValidateTunnelDefinition(c.Wireguard.TunnelDefinition); err != nil {
			return fmt.Errorf("wireguard_config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported connection type %q: supported types are postgresql, ssh, wireguard", c.Type)
	}
	return nil
}
