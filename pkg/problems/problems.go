package problems

import (
	"encoding/json"
	"net/http"
	"os"
	"strings"
)

// Problem is an RFC 7807 problem document.
type Problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Base returns the base URL for problem type identifiers.
// Order of precedence:
// 1. PROBLEM_BASE_URL (exact base, e.g. https://mydomain.com/problems)
// 2. BASE_PUBLIC_URL + "/problems" (if set)
// 3. https://example.com/problems (fallback)
func Base() string {
	if b := os.Getenv("PROBLEM_BASE_URL"); b != "" {
		return strings.TrimRight(b, "/")
	}
	if b := os.Getenv("BASE_PUBLIC_URL"); b != "" {
		return strings.TrimRight(b, "/") + "/problems"
	}
	return "https://example.com/problems"
}

// Type builds a full problem type URL for the given slug.
func Type(slug string) string { return Base() + "/" + slug }

// Write sends a problem+json response.
func Write(w http.ResponseWriter, status int, slug, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Problem{Type: Type(slug), Title: title, Status: status, Detail: detail})
}
