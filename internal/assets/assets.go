// Package assets embeds the client JavaScript and CSS
package assets

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
)

//go:embed client/*
var clientFS embed.FS

// Names of the embedded files, as served under /assets/.
const (
	ScriptName     = "tinkerblog.js"
	StylesheetName = "tinkerblog.css"
)

// ClientFS returns the embedded client files
func ClientFS() fs.FS {
	sub, err := fs.Sub(clientFS, "client")
	if err != nil {
		panic(err)
	}
	return sub
}

// GetClientJS returns the live code and hot reload script
func GetClientJS() ([]byte, error) {
	return clientFS.ReadFile("client/" + ScriptName)
}

// GetClientCSS returns the site stylesheet
func GetClientCSS() ([]byte, error) {
	return clientFS.ReadFile("client/" + StylesheetName)
}

// Version returns a short content hash of the client files, used to bust
// browser caches in asset URLs.
func Version() string {
	h := sha256.New()
	for _, name := range []string{ScriptName, StylesheetName} {
		data, err := clientFS.ReadFile("client/" + name)
		if err != nil {
			continue
		}
		h.Write(data)
	}
	return hex.EncodeToString(h.Sum(nil))[:10]
}
