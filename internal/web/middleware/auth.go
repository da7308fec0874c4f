package middleware

import (
	"context"
	"net/http"
	"strings"
)

type contextKey string

const facultyContextKey contextKey = "faculty"

// FacultyHeader carries the authenticated faculty ID, set by the fronting
// identity proxy.
const FacultyHeader = "X-Faculty-ID"

// RequireFaculty is middleware that requires a faculty identity on the request
func RequireFaculty() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			faculty := strings.TrimSpace(r.Header.Get(FacultyHeader))
			if faculty == "" || strings.ContainsAny(faculty, "\r\n") {
				w.Header().Set("Content-Type", "application/json")
				http.Error(w, `{"error": "unauthorized"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), facultyContextKey, faculty)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetFacultyFromContext retrieves the faculty ID from the request context
func GetFacultyFromContext(ctx context.Context) string {
	faculty, _ := ctx.Value(facultyContextKey).(string)
	return faculty
}

// SetFacultyInContext adds a faculty ID to the context.
// This is primarily for testing - use RequireFaculty middleware in production.
func SetFacultyInContext(ctx context.Context, faculty string) context.Context {
	return context.WithValue(ctx, facultyContextKey, faculty)
}
