package fund

import (
	"encoding/json"
	"fmt"
	"os"

	"cortex5/internal/model"
)

// LoadSnapshot reads a portfolio summary from a JSON file. Returns nil if
// the file doesn't exist.
func LoadSnapshot(filePath string) (*model.PortfolioSnapshot, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var snap model.PortfolioSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse portfolio snapshot: %w", err)
	}
	return &snap, nil
}

// SaveSnapshot writes a portfolio summary to a JSON file.
func SaveSnapshot(filePath string, snap model.PortfolioSnapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filePath, data, 0644)
}
