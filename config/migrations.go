package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Migration identifies one source index to be reindexed into one destination index
type Migration struct {
	Source string `yaml:"source" json:"source"`
	Dest   string `yaml:"dest"   json:"dest"`
}

type migrationFile struct {
	Migrations []Migration `yaml:"migrations"`
}

// LoadMigrations reads the ordered list of migrations from a yaml file of the form:
//
//	migrations:
//	  - source: ons_2022
//	    dest: ons_2022
//	  - source: releases
//	    dest: releases_v2
//
// The list is validated so that a bad file fails the run before any migration starts.
func LoadMigrations(path string) ([]Migration, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration file")
	}

	var f migrationFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse migration file")
	}

	if err := validateMigrations(f.Migrations); err != nil {
		return nil, errors.Wrap(err, "invalid migration file "+path)
	}
	return f.Migrations, nil
}

func validateMigrations(migrations []Migration) error {
	if len(migrations) == 0 {
		return errors.New("no migrations defined")
	}

	seenDest := make(map[string]struct{}, len(migrations))
	for i, m := range migrations {
		if m.Source == "" {
			return errors.Errorf("migration %d has no source index", i)
		}
		if m.Dest == "" {
			return errors.Errorf("migration %d (source %s) has no destination index", i, m.Source)
		}
		if _, ok := seenDest[m.Dest]; ok {
			return errors.Errorf("destination index %s appears more than once", m.Dest)
		}
		seenDest[m.Dest] = struct{}{}
	}
	return nil
}
