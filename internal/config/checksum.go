package config

import (
	"crypto/sha256"
	"encoding/hex"

	"gopkg.in/yaml.v3"
)

// Checksum returns a short, stable identifier of the effective configuration.
// Map keys are emitted in sorted order, so the result does not depend on the
// order stations were declared in.
func Checksum(cfg *SimulationConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:12], nil
}
