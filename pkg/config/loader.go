package config

import (
	"os"
	"path/filepath"

	"github.com/apex/log"
	"github.com/mitchellh/go-homedir"
)

// MustLoadFromFHDotenv loads the dotenv the daemons share. The path comes
// from FH_DOTENV_PATH when set, otherwise ~/.filehaven/.env. A missing
// file is fatal; every deployment carries one.
func MustLoadFromFHDotenv() Configer {
	path := os.Getenv("FH_DOTENV_PATH")
	if path == "" {
		home, err := homedir.Dir()
		if err != nil {
			log.Fatalf("Cannot determine home directory: %s", err)
		}
		path = filepath.Join(home, ".filehaven", ".env")
	}

	c := NewDotenvConfig(path)
	if err := c.Load(); err != nil {
		log.Fatalf("Failed loading dotenv %s: %s", path, err)
	}

	SetConfig(c)

	return c
}
