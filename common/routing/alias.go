package routing

import "strings"

// MapAlternativePaths expands a request path into the HTML alias paths an
// asset may be stored under: /page resolves via /page.html and
// /page/index.html, /dir/ via /dir/index.html. Paths that already carry an
// extension have no aliases.
func MapAlternativePaths(path string) []string {
	if path == "" || path == "/" {
		return []string{"/index.html"}
	}

	if strings.HasSuffix(path, "/") {
		return []string{path + "index.html"}
	}

	last := path[strings.LastIndexByte(path, '/')+1:]
	if strings.ContainsRune(last, '.') {
		return nil
	}

	return []string{path + ".html", path + "/index.html"}
}

// AlternativePaths is the reversal: given a stored HTML asset path, list
// the request paths that alias to it. /a/index.html answers /a and /a/,
// /a.html answers /a, and /index.html additionally answers the root.
func AlternativePaths(fullPath string) []string {
	if fullPath == "/index.html" {
		return []string{"/"}
	}

	if strings.HasSuffix(fullPath, "/index.html") {
		trimmed := strings.TrimSuffix(fullPath, "/index.html")
		return []string{trimmed, trimmed + "/"}
	}

	if strings.HasSuffix(fullPath, ".html") {
		return []string{strings.TrimSuffix(fullPath, ".html")}
	}

	return nil
}
