package features

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wonny/augur/backend/internal/contracts"
)

// sectorMapFile is the on-disk shape of the sector mapping.
type sectorMapFile struct {
	Sectors map[string]string `yaml:"sectors"`
}

// LoadSectorMap reads the ticker to sector mapping from a YAML file. An
// empty path means no mapping is configured and returns nil so valuation
// falls back to cross-sectional z-scores. Unknown fields fail the load.
func LoadSectorMap(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sector map: %w", err)
	}

	var file sectorMapFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // 알 수 없는 필드 발견 시 에러 반환
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse sector map: %w", err)
	}

	sectors := make(map[string]string, len(file.Sectors))
	for ticker, sector := range file.Sectors {
		ticker = strings.TrimSpace(ticker)
		sector = strings.TrimSpace(sector)
		if ticker == "" || sector == "" {
			return nil, contracts.NewValidationError("sectors", "ticker and sector must be non-empty")
		}
		sectors[ticker] = sector
	}
	return sectors, nil
}
