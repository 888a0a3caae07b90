package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

var blockedPathPatterns = []string{
	".php",
	".env",
	".git",
	"wp-admin",
	"wp-login",
	"xmlrpc",
	"backup",
	"phpmyadmin",
}

var blockedAgentPatterns = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"zgrab",
}

// loggingMiddleware rejects scanner traffic and logs every other request.
func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.UserAgent()

		if pattern, ok := matchAny(r.URL.Path, blockedPathPatterns); ok {
			h.logger.Printf("BLOCKED probe (%s): %s %s from %s", pattern, r.Method, r.RequestURI, r.RemoteAddr)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Access denied"})
			return
		}
		if pattern, ok := matchAny(userAgent, blockedAgentPatterns); ok {
			h.logger.Printf("BLOCKED bot (%s): %s from %s", pattern, userAgent, r.RemoteAddr)
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "Access denied"})
			return
		}

		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		statusColor := getStatusColor(wrapped.statusCode)
		methodColor := getMethodColor(r.Method)

		h.logger.Printf(
			"%s %s %s %s %s %d %s",
			methodColor+r.Method+"\033[0m",
			r.RequestURI,
			statusColor+fmt.Sprintf("%d", wrapped.statusCode)+"\033[0m",
			duration.String(),
			r.RemoteAddr,
			wrapped.contentLength,
			userAgent,
		)
	})
}

func matchAny(s string, patterns []string) (string, bool) {
	s = strings.ToLower(s)
	for _, pattern := range patterns {
		if strings.Contains(s, pattern) {
			return pattern, true
		}
	}
	return "", false
}

type responseWriter struct {
	http.ResponseWriter
	statusCode    int
	contentLength int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.contentLength += n
	return n, err
}

// Color codes for terminal output
func getStatusColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "\033[32m" // Green
	case statusCode >= 300 && statusCode < 400:
		return "\033[36m" // Cyan
	case statusCode >= 400 && statusCode < 500:
		return "\033[33m" // Yellow
	case statusCode >= 500:
		return "\033[31m" // Red
	default:
		return "\033[37m" // White
	}
}

func getMethodColor(method string) string {
	switch method {
	case http.MethodGet:
		return "\033[34m" // Blue
	case http.MethodPost:
		return "\033[32m" // Green
	case http.MethodPut:
		return "\033[33m" // Yellow
	case http.MethodDelete:
		return "\033[31m" // Red
	default:
		return "\033[37m" // White
	}
}
