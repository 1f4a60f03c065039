// Package boardconfig loads a declarative board description for the
// gicv5sim demonstration CLI, grounded on tinyrange-cc's use of
// gopkg.in/yaml.v3 for declarative system description.
package boardconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"gicv5"
)

// Board is the YAML-decodable shape of a board description.
type Board struct {
	IRSID            uint32   `yaml:"irsid"`
	SPIBase          uint32   `yaml:"spi_base"`
	NumSPIs          uint32   `yaml:"num_spis"`
	SPIRange         uint32   `yaml:"spi_range"`
	NumCPUs          int      `yaml:"num_cpus"`
	IAFFIDs          []uint32 `yaml:"iaffids,omitempty"`
	RealmImplemented bool     `yaml:"realm_implemented"`
}

// LoadFile reads and parses a board description from path.
func LoadFile(path string) (Board, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Board{}, fmt.Errorf("boardconfig: read %s: %w", path, err)
	}
	var b Board
	if err := yaml.Unmarshal(data, &b); err != nil {
		return Board{}, fmt.Errorf("boardconfig: parse %s: %w", path, err)
	}
	return b, nil
}

// SystemConfig converts a parsed Board into a gicv5.SystemConfig.
func (b Board) SystemConfig() gicv5.SystemConfig {
	return gicv5.SystemConfig{
		IRSID:            b.IRSID,
		SPIBase:          b.SPIBase,
		NumSPIs:          b.NumSPIs,
		SPIRange:         b.SPIRange,
		NumCPUs:          b.NumCPUs,
		IAFFIDs:          b.IAFFIDs,
		RealmImplemented: b.RealmImplemented,
	}
}
