package util

import (
	"strings"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// idNamespace scopes all name-based IDs of the knowledge graph.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:soapkg:graph"))

// DeterministicID derives a stable, name-based (v5) identifier from the
// given parts. The same parts always yield the same ID.
func DeterministicID(prefix string, parts ...string) string {
	id := uuid.NewSHA1(idNamespace, []byte(strings.Join(parts, "\x1f")))
	if prefix == "" {
		return id.String()
	}
	return prefix + "_" + id.String()
}

// NewRunID returns a short random identifier for a pipeline run.
func NewRunID() string {
	id, err := gonanoid.New(12)
	if err != nil {
		return uuid.NewString()
	}
	return id
}
