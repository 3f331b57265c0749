// File: internal/examples/examples.go
// Package examples bundles the sample walkthrough: a signup page, a recorded
// step collection for it and a stub mapping document.
package examples

import (
	"embed"
	"io/fs"
)

//go:embed steps-recorded.json stub-response.json signup.html
var files embed.FS

const (
	StepsFile    = "steps-recorded.json"
	MappingsFile = "stub-response.json"
	PageFile     = "signup.html"
)

// FS exposes the bundled files, e.g. for serving them over HTTP.
func FS() fs.FS { return files }

// Steps returns the recorded step collection.
func Steps() []byte { return mustRead(StepsFile) }

// Mappings returns the stub mapping document.
func Mappings() []byte { return mustRead(MappingsFile) }

// SignupPage returns the example page markup.
func SignupPage() []byte { return mustRead(PageFile) }

func mustRead(name string) []byte {
	data, err := files.ReadFile(name)
	if err != nil {
		// Embedded at build time; a failure here is a packaging bug.
		panic(err)
	}
	return data
}
