package config

import (
	"fmt"

	"github.com/spf13/viper"

	"workshopreg/internal/domain/workshop"
)

// workshopEntry is one item of the registry file.
type workshopEntry struct {
	Code         string `mapstructure:"code"`
	Name         string `mapstructure:"name"`
	Description  string `mapstructure:"description"`
	PasswordHash string `mapstructure:"password_hash"`
}

type registryFile struct {
	Workshops []workshopEntry `mapstructure:"workshops"`
}

// LoadRegistry reads the workshop registry from a YAML (or JSON/TOML) file.
// PRE: path names a readable file with a top-level "workshops" list
// POST: Returns a validated registry in file order
func LoadRegistry(path string) (*workshop.Registry, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read registry %s: %w", path, err)
	}

	var file registryFile
	if err := v.Unmarshal(&file); err != nil {
		return nil, fmt.Errorf("decode registry %s: %w", path, err)
	}

	workshops := make([]workshop.Workshop, 0, len(file.Workshops))
	for _, e := range file.Workshops {
		name := e.Name
		if name == "" {
			name = e.Code
		}
		workshops = append(workshops, workshop.Workshop{
			Code:         e.Code,
			Name:         name,
			Description:  e.Description,
			PasswordHash: e.PasswordHash,
		})
	}

	reg, err := workshop.NewRegistry(workshops)
	if err != nil {
		return nil, fmt.Errorf("registry %s: %w", path, err)
	}
	return reg, nil
}
