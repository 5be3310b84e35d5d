package agent

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ignoreList decides which paths the watcher skips. It understands the
// .gitignore syntax the projects we scaffold use: globs, "dir/" rules,
// leading "/" anchors, "**" segments, "!" negation and comments.
type ignoreList struct {
	rules []rule
}

type rule struct {
	segments []string // pattern split on "/"; unanchored rules start with "**"
	negate   bool
	dirOnly  bool
}

// readIgnoreFile loads root/.gitignore. A missing file yields an empty list.
func readIgnoreFile(root string) *ignoreList {
	l := &ignoreList{}
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return l
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		l.add(sc.Text())
	}
	return l
}

// add parses one pattern line and appends it. Blank lines and comments are
// ignored.
func (l *ignoreList) add(line string) {
	if r, ok := parseRule(line); ok {
		l.rules = append(l.rules, r)
	}
}

func parseRule(line string) (rule, bool) {
	line = strings.TrimRight(line, " \t")
	if line == "" || line[0] == '#' {
		return rule{}, false
	}

	var r rule
	if line[0] == '!' {
		r.negate = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimRight(line, "/")
	}

	anchored := strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")
	if line == "" {
		return rule{}, false
	}

	r.segments = strings.Split(line, "/")
	if !anchored {
		r.segments = append([]string{"**"}, r.segments...)
	}
	return r, true
}

// Ignored reports whether rel (slash separated, relative to the root) is
// excluded, either itself or through one of its parent directories.
func (l *ignoreList) Ignored(rel string, isDir bool) bool {
	if len(l.rules) == 0 {
		return false
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i := 1; i < len(parts); i++ {
		if l.match(parts[:i], true) {
			return true
		}
	}
	return l.match(parts, isDir)
}

// match applies every rule in order; the last matching rule wins.
func (l *ignoreList) match(parts []string, isDir bool) bool {
	ignored := false
	for _, r := range l.rules {
		if r.dirOnly && !isDir {
			continue
		}
		if matchSegments(r.segments, parts) {
			ignored = !r.negate
		}
	}
	return ignored
}

// matchSegments matches path segments against pattern segments, where a
// "**" segment consumes zero or more path segments.
func matchSegments(pattern, parts []string) bool {
	for len(pattern) > 0 {
		if pattern[0] == "**" {
			rest := pattern[1:]
			if len(rest) == 0 {
				return true
			}
			for i := 0; i <= len(parts); i++ {
				if matchSegments(rest, parts[i:]) {
					return true
				}
			}
			return false
		}
		if len(parts) == 0 {
			return false
		}
		if ok, _ := path.Match(pattern[0], parts[0]); !ok {
			return false
		}
		pattern, parts = pattern[1:], parts[1:]
	}
	return len(parts) == 0
}
