package configs

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.yaml
var embeddedManifests embed.FS

// Names returns the embedded manifest filenames.
func Names() []string {
	entries, err := fs.Glob(embeddedManifests, "*.yaml")
	if err != nil {
		return nil
	}
	sort.Strings(entries)
	return entries
}

// Load returns an embedded manifest by profile ("dev") or filename
// ("dev.yaml") together with its filename.
func Load(profile string) (string, []byte, error) {
	name := strings.TrimSpace(profile)
	if name == "" {
		return "", nil, fmt.Errorf("embedded manifest name is empty")
	}
	if !strings.HasSuffix(name, ".yaml") {
		name += ".yaml"
	}
	data, err := fs.ReadFile(embeddedManifests, name)
	if err != nil {
		return "", nil, fmt.Errorf("read embedded manifest %q (available: %s): %w", profile, strings.Join(Names(), ", "), err)
	}
	return name, data, nil
}
