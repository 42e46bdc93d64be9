package memory

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"bulkmail/internal/domain"
)

// Source serves a fixed recipient list.
type Source struct {
	Recipients []domain.Recipient
}

func (s *Source) ListEligible(ctx context.Context) ([]domain.Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	out := make([]domain.Recipient, len(s.Recipients))
	copy(out, s.Recipients)
	return out, nil
}

type recipientsFile struct {
	Recipients []struct {
		ID          string            `yaml:"id"`
		Email       string            `yaml:"email"`
		DisplayName string            `yaml:"displayName"`
		Fields      map[string]string `yaml:"fields"`
	} `yaml:"recipients"`
}

// LoadRecipients reads a YAML file of the form:
//
//	recipients:
//	  - id: r1
//	    email: ada@example.com
//	    displayName: Ada
func LoadRecipients(path string) (*Source, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f recipientsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse recipients file %s: %w", path, err)
	}
	src := &Source{}
	for i, r := range f.Recipients {
		if r.ID == "" {
			return nil, fmt.Errorf("recipients file %s: entry %d has no id", path, i)
		}
		src.Recipients = append(src.Recipients, domain.Recipient{
			ID:          r.ID,
			Email:       r.Email,
			DisplayName: r.DisplayName,
			Fields:      r.Fields,
		})
	}
	return src, nil
}
