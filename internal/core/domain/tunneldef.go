package domain

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"strings"
)

// WireGuard tunnel definitions arrive as INI text with [Interface] and
// [Peer] sections. The broker never brings the interface up; it only
// checks the definition is well formed before storing it encrypted, so a
// corrupt upload is rejected at save time instead of surfacing as an
// opaque connect failure later.

var tunnelDefKeys = map[string]map[string]bool{
	"interface": {
		"privatekey": true,
		"address":    true,
		"dns":        true,
		"mtu":        true,
		"listenport": true,
	},
	"peer": {
		"publickey":           true,
		"presharedkey":        true,
		"endpoint":            true,
		"allowedips":          true,
		"persistentkeepalive": true,
	},
}

// ValidateTunnelDefinition checks a WireGuard configuration for the
// required sections and keys. Keys outside the known set are rejected.
func ValidateTunnelDefinition(def string) error {
	if strings.TrimSpace(def) == "" {
		return fmt.Errorf("tunnel definition is empty")
	}

	var section string
	seen := map[string]map[string]bool{}

	scanner := bufio.NewScanner(strings.NewReader(def))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, ";") {
			continue
		}

		if strings.HasPrefix(text, "[") {
			if !strings.HasSuffix(text, "]") {
				return fmt.Errorf("line %d: malformed section header %q", line, text)
			}
			section = strings.ToLower(strings.TrimSpace(text[1 : len(text)-1]))
			if _, ok := tunnelDefKeys[section]; !ok {
				return fmt.Errorf("line %d: unknown section [%s]", line, section)
			}
			if seen[section] == nil {
				seen[section] = map[string]bool{}
			}
			continue
		}

		if section == "" {
			return fmt.Errorf("line %d: key outside of a section", line)
		}

		key, value, ok := strings.Cut(text, "=")
		if !ok {
			return fmt.Errorf("line %d: expected key = value", line)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		if !tunnelDefKeys[section][key] {
			return fmt.Errorf("line %d: unknown key %q in [%s]", line, key, section)
		}
		if value == "" {
			return fmt.Errorf("line %d: key %q has no value", line, key)
		}
		if key == "privatekey" || key == "publickey" || key == "presharedkey" {
			if err := validateWireguardKey(value); err != nil {
				return fmt.Errorf("line %d: %s: %w", line, key, err)
			}
		}
		seen[section][key] = true
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading tunnel definition: %w", err)
	}

	if !seen["interface"]["privatekey"] {
		return fmt.Errorf("[Interface] section with PrivateKey is required")
	}
	if !seen["peer"]["publickey"] || !seen["peer"]["endpoint"] {
		return fmt.Errorf("[Peer] section with PublicKey and Endpoint is required")
	}
	return nil
}

// validateWireguardKey checks the base64 form of a Curve25519 key.
func validateWireguardKey(s string) error {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return fmt.Errorf("not valid base64")
	}
	if len(raw) != 32 {
		return fmt.Errorf("decoded key is %d bytes, want 32", len(raw))
	}
	return nil
}
