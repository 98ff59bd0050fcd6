package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when present so that MARKETPLACE_* overrides and
// account mnemonics can live outside the shell environment.
const DefaultEnvFile = ".env"

// LoadEnvFile exports the variables in path into the process environment.
// Variables that are already set win. A missing DefaultEnvFile is not an
// error; any other missing path is.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load env file %s: %w", path, err)
}
