package gbrt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// modelFormatVersion guards artifact compatibility across releases.
const modelFormatVersion = 1

type modelFile struct {
	FormatVersion int      `json:"format_version"`
	Model         *Booster `json:"model"`
}

// Save writes the fitted model as a JSON artifact, creating parent
// directories as needed.
func (b *Booster) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create model dir: %w", err)
		}
	}
	data, err := json.Marshal(modelFile{FormatVersion: modelFormatVersion, Model: b})
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}

// Load reads a model artifact written by Save.
func Load(path string) (*Booster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}
	var mf modelFile
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", path, err)
	}
	if mf.FormatVersion != modelFormatVersion {
		return nil, fmt.Errorf("model %s has format version %d, want %d", path, mf.FormatVersion, modelFormatVersion)
	}
	b := mf.Model
	if b == nil || len(b.Trees) == 0 || len(b.FeatureNames) == 0 {
		return nil, fmt.Errorf("model %s is empty", path)
	}
	if b.BestIteration < 1 || b.BestIteration > len(b.Trees) {
		b.BestIteration = len(b.Trees)
	}
	return b, nil
}
