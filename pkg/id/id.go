// Package id generates identifiers for pipeline runs and bus messages.
package id

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

const timestampLayout = "20060102150405"

// Pipeline derives a human-legible pipeline id from repo, branch and the
// current time. The short random suffix keeps ids unique when two runs for
// the same repo/branch start within the same second.
func Pipeline(repo, branch string, now time.Time) string {
	return fmt.Sprintf("%s-%s-%s-%s",
		strings.ReplaceAll(repo, "/", "-"),
		branch,
		now.Format(timestampLayout),
		Short(),
	)
}

// Short returns a short url-safe random id.
func Short() string {
	sid, err := shortid.Generate()
	if err != nil {
		// shortid only fails on a broken entropy source; fall back to uuid
		return UUID()[:9]
	}
	return sid
}

// UUID returns a new random UUID string.
func UUID() string {
	return uuid.NewString()
}
