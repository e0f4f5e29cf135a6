package appconfig

import (
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/subosito/gotenv"
)

// DotEnvFiles are loaded from the working directory before configuration is read.
var DotEnvFiles = []string{".releaser.env", ".env"}

// LoadDotEnv exports variables from the dotenv files present in dir. Variables
// already set in the environment are left untouched. It returns the files read.
func LoadDotEnv(fs afero.Fs, dir string) ([]string, error) {
	var loaded []string
	for _, name := range DotEnvFiles {
		path := filepath.Join(dir, name)
		f, err := fs.Open(path)
		if err != nil {
			continue
		}
		env, err := gotenv.StrictParse(f)
		_ = f.Close()
		if err != nil {
			return loaded, err
		}
		for key, val := range env {
			if _, ok := lookupEnv(key); ok {
				continue
			}
			if err := setEnv(key, val); err != nil {
				return loaded, err
			}
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}
