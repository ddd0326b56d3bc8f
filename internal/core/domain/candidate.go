package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

type CandidateStatus string

const (
	StatusPending     CandidateStatus = "pending"
	StatusQualified   CandidateStatus = "qualified"
	StatusUnqualified CandidateStatus = "unqualified"
	StatusFailed      CandidateStatus = "failed"
	StatusDuplicate   CandidateStatus = "duplicate"
)

// Candidate is one ingested resume and everything the pipeline derived from it.
// Fields holds the structured extraction output keyed by field name
// (name, email, title, years_experience, skills, ...).
type Candidate struct {
	ID            string           `json:"id"`
	Filename      string           `json:"filename"`
	MimeType      string           `json:"mime_type"`
	RawText       string           `json:"raw_text,omitempty"`
	Fields        map[string]Value `json:"fields,omitempty"`
	ContentHash   string           `json:"content_hash"`
	Status        CandidateStatus  `json:"status"`
	Justification string           `json:"justification,omitempty"`
	DuplicateOf   string           `json:"duplicate_of,omitempty"`
	ResumeKey     string           `json:"resume_key"`
	ImageKeys     []string         `json:"image_keys,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Extraction is what the document extractor yields: the resume's plain text
// plus any images embedded in the source format.
type Extraction struct {
	Text   string
	Images []ExtractedImage
}

// ExtractedImage carries one embedded image until the store stage writes it
// to object storage. Extension keeps the source format's dot prefix (".png").
type ExtractedImage struct {
	Extension string
	Data      []byte
}

// ContentHash fingerprints resume text after whitespace normalization so the
// same document uploaded twice under different names hashes identically.
func ContentHash(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := sha256.Sum256([]byte(strings.ToLower(normalized)))
	return hex.EncodeToString(sum[:])
}
