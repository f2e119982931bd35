package cloudfx

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/gekko3d/cloudfx/cloudrt/rt/core"
)

// SettingsPreset is the on-disk form of a view's cloud settings.
type SettingsPreset struct {
	Name     string             `json:"name,omitempty"`
	Volume   string             `json:"volume,omitempty"`
	Settings core.CloudSettings `json:"settings"`
}

func SaveSettingsPreset(filename string, preset SettingsPreset) error {
	if err := preset.Settings.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(preset, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// LoadSettingsPreset reads a preset. Fields missing from the file keep
// their default values.
func LoadSettingsPreset(filename string) (SettingsPreset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return SettingsPreset{}, err
	}
	preset := SettingsPreset{Settings: core.DefaultCloudSettings()}
	if err := json.Unmarshal(data, &preset); err != nil {
		return SettingsPreset{}, fmt.Errorf("cloudfx: parse preset %s: %w", filename, err)
	}
	if err := preset.Settings.Validate(); err != nil {
		return SettingsPreset{}, fmt.Errorf("cloudfx: preset %s: %w", filename, err)
	}
	return preset, nil
}
