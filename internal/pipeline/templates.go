package pipeline

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/FeelPulse/skyoracle/pkg/types"
)

//go:embed templates/*.tmpl
var embedded embed.FS

var templateFiles = map[types.Mode]string{
	types.ModeFactCheck: "factcheck.tmpl",
	types.ModeMedia:     "media.tmpl",
}

// templateID is the name a rendered prompt is cached and logged under
func templateID(mode types.Mode) string {
	return string(mode)
}

// loadTemplates parses the embedded prompt templates. Files with the same
// name in dir, when set, replace the embedded ones.
func loadTemplates(dir string) (map[types.Mode]*template.Template, error) {
	out := make(map[types.Mode]*template.Template, len(templateFiles))
	for mode, name := range templateFiles {
		data, err := readTemplate(dir, name)
		if err != nil {
			return nil, err
		}
		tmpl, err := template.New(name).Option("missingkey=error").Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		out[mode] = tmpl
	}
	return out, nil
}

func readTemplate(dir, name string) ([]byte, error) {
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err == nil {
			return data, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read template override %s: %w", name, err)
		}
	}
	return embedded.ReadFile("templates/" + name)
}
