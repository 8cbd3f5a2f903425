// Package respond writes the application's responses: HTML pages, JSON,
// CSV, redirects, raw blobs and error pages, each with security headers
// and an exact Content-Length.
package respond

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const csp = "default-src 'self'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; " +
	"img-src 'self' data: https:; style-src 'self' 'unsafe-inline'; " +
	"script-src 'self' 'unsafe-inline'; font-src 'self' data:; connect-src 'self'"

// SecurityHeaders sets the hardening headers sent with every response.
// HSTS is only added for secure requests with a positive max age.
func SecurityHeaders(h http.Header, secure bool, hstsMaxAge int) {
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
	h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("Cross-Origin-Resource-Policy", "same-origin")
	h.Set("Content-Security-Policy", csp)
	if secure && hstsMaxAge > 0 {
		h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(hstsMaxAge)+"; includeSubDomains")
	}
}

func write(w http.ResponseWriter, status int, contentType string, body []byte) {
	h := w.Header()
	h.Set("Content-Type", contentType)
	h.Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(status)
	w.Write(body)
}

// JSON encodes v. Responses are never cached.
func JSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		b = []byte(`{"ok":false}`)
		status = http.StatusInternalServerError
	}
	w.Header().Set("Cache-Control", "no-store")
	write(w, status, "application/json", b)
}

// Text writes a plain text body.
func Text(w http.ResponseWriter, status int, msg string) {
	write(w, status, "text/plain; charset=utf-8", []byte(msg))
}

// Redirect sends a 302, 303 or 301 to location.
func Redirect(w http.ResponseWriter, location string, status int) {
	w.Header().Set("Location", location)
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(status)
}

// WithMessage appends the flash query used to show inline messages.
func WithMessage(path, msg string, isErr bool) string {
	q := url.Values{}
	q.Set("msg", msg)
	if isErr {
		q.Set("err", "1")
	} else {
		q.Set("err", "0")
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// CSV writes rows as an attachment. Cells that a spreadsheet would treat
// as formulas are prefixed with a quote.
func CSV(w http.ResponseWriter, filename string, rows [][]string) error {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	for _, row := range rows {
		safe := make([]string, len(row))
		for i, cell := range row {
			safe[i] = neutralize(cell)
		}
		if err := cw.Write(safe); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	h := w.Header()
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, filename))
	h.Set("Cache-Control", "no-store")
	write(w, http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
	return nil
}

func neutralize(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}

// Blob writes raw bytes with the given content type.
func Blob(w http.ResponseWriter, contentType string, data []byte) {
	write(w, http.StatusOK, contentType, data)
}
