package server

import "net/http"

type OriginChecker struct {
	allowAll bool
	origins  map[string]struct{}
}

func NewOriginChecker(origins []string) *OriginChecker {
	checker := &OriginChecker{
		origins: make(map[string]struct{}),
	}

	for _, origin := range origins {
		if origin == "*" {
			checker.allowAll = true

			continue
		}

		checker.origins[origin] = struct{}{}
	}

	return checker
}

func (c *OriginChecker) Check(r *http.Request) bool {
	if c.allowAll {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser clients (sibling services, tests) send no Origin.
		return true
	}

	_, ok := c.origins[origin]

	return ok
}
