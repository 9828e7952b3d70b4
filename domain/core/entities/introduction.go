package entities

import (
	"fmt"
	"strings"
	"time"

	"github.com/suibari/graph-be-more-blue/domain/core/valueobjects"
)

// IntroductionRecord is one "author introduces subject" claim parsed from a
// remote repository record. The author is not stored inline in the source
// payload; it is derived from the record's origin repository at parse time.
type IntroductionRecord struct {
	Author    valueobjects.Identity `json:"author"`
	Subject   valueobjects.Identity `json:"subject"`
	Body      string                `json:"body"`
	Language  string                `json:"lang,omitempty"`
	Tags      []string              `json:"tags,omitempty"`
	CreatedAt time.Time             `json:"createdAt"`
	UpdatedAt time.Time             `json:"updatedAt"`
}

// DedupKey identifies an introduction for merge de-duplication. Two
// introductions with the same (author, subject) pair are considered the
// same claim regardless of body text.
func (r IntroductionRecord) DedupKey() string {
	return r.Author.String() + "\x00" + r.Subject.String()
}

// AuthorFromRecordURI extracts the authoring repository's identity from an
// AT URI of the form "at://did:plc:xxx/collection/rkey".
func AuthorFromRecordURI(uri string) (valueobjects.Identity, error) {
	parts := strings.Split(uri, "/")
	if len(parts) < 3 || parts[2] == "" {
		return "", fmt.Errorf("record uri %q has no repository segment", uri)
	}
	return valueobjects.NewIdentity(parts[2])
}
