// Package seed loads the review queue handed over by the upstream summary
// generator.
//
// A queue file is a YAML document:
//
//	schema_version: 1
//	file_type: summary-queue
//	summaries:
//	  - id: w1
//	    user_name: Priya S.
//	    ...
//
// Loading validates every summary; pairing uniqueness of (user, week) is the
// generator's responsibility and is not re-checked here.
package seed

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kingrea/raga-review/internal/review"
)

const (
	// SchemaVersion is the only queue document version this build understands.
	SchemaVersion = 1
	// FileType identifies queue documents.
	FileType = "summary-queue"
)

var validate = validator.New()

// Document models a queue file on disk.
type Document struct {
	SchemaVersion int              `yaml:"schema_version"`
	FileType      string           `yaml:"file_type"`
	Summaries     []review.Summary `yaml:"summaries"`
}

// Load reads and validates the queue file at path.
func Load(path string) ([]review.Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("seed: read %s: %w", path, err)
	}
	summaries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("seed: %s: %w", path, err)
	}
	return summaries, nil
}

// Parse decodes and validates a queue document.
func Parse(data []byte) ([]review.Summary, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse queue: %w", err)
	}
	if doc.SchemaVersion == 0 {
		doc.SchemaVersion = SchemaVersion
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("schema_version %d not supported", doc.SchemaVersion)
	}
	if ft := strings.TrimSpace(doc.FileType); ft != "" && ft != FileType {
		return nil, fmt.Errorf("file_type %q is not %q", ft, FileType)
	}
	for i := range doc.Summaries {
		normalize(&doc.Summaries[i])
		if err := validate.Struct(doc.Summaries[i]); err != nil {
			return nil, fmt.Errorf("summaries[%d]: %w", i, formatValidationError(err))
		}
	}
	return doc.Summaries, nil
}

// Encode renders summaries as a queue document.
func Encode(summaries []review.Summary) ([]byte, error) {
	doc := Document{
		SchemaVersion: SchemaVersion,
		FileType:      FileType,
		Summaries:     summaries,
	}
	return yaml.Marshal(doc)
}

func normalize(s *review.Summary) {
	s.ID = strings.TrimSpace(s.ID)
	s.UserName = strings.TrimSpace(s.UserName)
	s.WeekRange = strings.TrimSpace(s.WeekRange)
	s.DominantEmotion = strings.TrimSpace(s.DominantEmotion)
	s.Status = review.Status(strings.ToLower(strings.TrimSpace(string(s.Status))))
	if s.Status == "" {
		s.Status = review.StatusPending
	}
	for i := range s.Journals {
		j := &s.Journals[i]
		j.ID = strings.TrimSpace(j.ID)
		j.Date = strings.TrimSpace(j.Date)
		j.Sentiment = review.Sentiment(strings.ToLower(strings.TrimSpace(string(j.Sentiment))))
		j.ShortTag = strings.TrimSpace(j.ShortTag)
	}
}

func formatValidationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, formatFieldError(fe))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if idx := strings.Index(field, "."); idx >= 0 {
		field = field[idx+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	case "gte", "lte":
		return fmt.Sprintf("%s must be between 0 and 100", field)
	case "datetime":
		return fmt.Sprintf("%s must be a %s date", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
