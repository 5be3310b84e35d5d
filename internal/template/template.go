// Package template renders the text agitegen writes into projects: backend
// adapter sources, the post-init instructions and hook commands.
package template

import (
	"embed"
	"fmt"
	"path"
	"strings"
)

// Variables holds the data injected into {{variable}} placeholders.
type Variables struct {
	Project string // project directory name
	Backend string // supabase, firebase or none
	Pass    string // convergence pass number
	Root    string // absolute project root
}

// Render replaces {{variable}} placeholders in template with actual values.
// Supports:
// - {{project}} - Project name
// - {{backend}} - Backend name
// - {{pass}} - Current pass number
// - {{root}} - Project root path
// Unknown placeholders are left untouched.
func Render(template string, vars Variables) string {
	return strings.NewReplacer(
		"{{project}}", vars.Project,
		"{{backend}}", vars.Backend,
		"{{pass}}", vars.Pass,
		"{{root}}", vars.Root,
	).Replace(template)
}

// NextSteps is printed after a successful init.
const NextSteps = `Scaffold complete! Next steps:
  1. cd into your project: ` + "`cd {{project}}`" + `
  2. Run the build process: ` + "`agitegen build`"

//go:embed backend/*.tmpl
var backendFS embed.FS

// File is a rendered project file, Path relative to the project root.
type File struct {
	Path    string
	Content string
}

// BackendDir is where adapter sources are written.
const BackendDir = "src/backend"

// backendFiles lists templates shared by every backend, then the client
// module that marks which backend a project uses.
var (
	sharedTemplates = []string{"abstract.ts", "supabaseAdapter.ts", "firebaseAdapter.ts", "index.ts"}
	clientTemplates = map[string]string{
		"supabase": "supabaseClient.ts",
		"firebase": "firebaseClient.ts",
	}
)

// ClientFile returns the marker module path for a backend, relative to the
// project root, or "" for none.
func ClientFile(backend string) string {
	name, ok := clientTemplates[backend]
	if !ok {
		return ""
	}
	return path.Join("src", name)
}

// BackendFiles renders the adapter layer for a backend.
func BackendFiles(vars Variables) ([]File, error) {
	client, ok := clientTemplates[vars.Backend]
	if !ok {
		return nil, fmt.Errorf("no adapter templates for backend %q", vars.Backend)
	}

	files := make([]File, 0, len(sharedTemplates)+1)
	for _, name := range sharedTemplates {
		content, err := load(name)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: path.Join(BackendDir, name), Content: Render(content, vars)})
	}

	content, err := load(client)
	if err != nil {
		return nil, err
	}
	files = append(files, File{Path: ClientFile(vars.Backend), Content: Render(content, vars)})
	return files, nil
}

func load(name string) (string, error) {
	data, err := backendFS.ReadFile("backend/" + name + ".tmpl")
	if err != nil {
		return "", fmt.Errorf("loading template %s: %w", name, err)
	}
	return string(data), nil
}
