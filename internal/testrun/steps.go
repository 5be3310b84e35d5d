package testrun

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// Framework tags accepted by StepsFor.
const (
	FrameworkRN      = "rn"
	FrameworkFlutter = "flutter"
)

// Step is one command of a framework's local test sequence.
type Step struct {
	Name        string
	Args        []string
	Manifest    string // skipped unless this file exists at the root
	Script      string // optional npm script; skipped unless package.json declares it
	Integration bool   // runs after backend emulators are provisioned
}

// String is the command line used in logs.
func (s Step) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

var frameworkSteps = map[string][]Step{
	FrameworkRN: {
		{Name: "npm", Args: []string{"run", "lint"}, Manifest: "package.json"},
		{Name: "npm", Args: []string{"test"}, Manifest: "package.json"},
		{Name: "npm", Args: []string{"run", "test:integration"}, Manifest: "package.json", Script: "test:integration", Integration: true},
	},
	FrameworkFlutter: {
		{Name: "flutter", Args: []string{"analyze"}, Manifest: "pubspec.yaml"},
		{Name: "flutter", Args: []string{"test"}, Manifest: "pubspec.yaml"},
		{Name: "flutter", Args: []string{"test", "integration_test"}, Manifest: "pubspec.yaml", Integration: true},
	},
}

// NormalizeFramework maps scaffold framework names to a test tag.
// Unknown names are returned unchanged and run no steps.
func NormalizeFramework(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "rn", "expo", "next", "nextjs":
		return FrameworkRN
	case "flutter", "flutter-web", "flutter-desktop":
		return FrameworkFlutter
	default:
		return n
	}
}

// StepsFor returns the test sequence for a framework tag.
func StepsFor(framework string) ([]Step, bool) {
	steps, ok := frameworkSteps[NormalizeFramework(framework)]
	return steps, ok
}

// DetectFramework guesses the framework tag from the project manifests.
func DetectFramework(root string) string {
	if fileExists(filepath.Join(root, "pubspec.yaml")) {
		return FrameworkFlutter
	}
	if fileExists(filepath.Join(root, "package.json")) {
		return FrameworkRN
	}
	return ""
}

// skipReason explains why step cannot run under root, or returns "".
func skipReason(root string, step Step) string {
	if step.Manifest != "" && !fileExists(filepath.Join(root, step.Manifest)) {
		return step.Manifest + " not found"
	}
	if step.Script != "" && !hasScript(filepath.Join(root, step.Manifest), step.Script) {
		return "no \"" + step.Script + "\" script in " + step.Manifest
	}
	return ""
}

func hasScript(packageJSON, script string) bool {
	data, err := os.ReadFile(packageJSON)
	if err != nil {
		return false
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}
	_, ok := pkg.Scripts[script]
	return ok
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
