package goals

import (
	"fmt"
	"os"
)

// LoadFromFile loads and validates a single plan document.
func LoadFromFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	plan, parseErr := ParseAndValidatePlan(data, path)
	if parseErr != nil {
		return nil, parseErr
	}
	return &plan, nil
}
