package main

import (
	"embed"
	"io/fs"
)

//go:embed config/*.yaml
var configFS embed.FS

// ConfigFiles returns a filesystem rooted at config within the embedded FS.
func ConfigFiles() fs.FS {
	if sub, err := fs.Sub(configFS, "config"); err == nil {
		return sub
	}
	return configFS
}

// DefaultPolicy returns the embedded match policy.
func DefaultPolicy() []byte {
	data, err := fs.ReadFile(ConfigFiles(), "match_policy.yaml")
	if err != nil {
		return nil
	}
	return data
}
