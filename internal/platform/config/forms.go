package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/jasonsutter87/veilforms-api/internal/domain"
)

// FormSeed is one entry of the FORMS_FILE document.
type FormSeed struct {
	ID             string   `yaml:"id"`
	OwnerID        string   `yaml:"owner_id"`
	Status         string   `yaml:"status"`
	Tier           string   `yaml:"tier"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	WebhookURL     string   `yaml:"webhook_url"`
	WebhookSecret  string   `yaml:"webhook_secret"`
}

type formsFile struct {
	Forms []FormSeed `yaml:"forms"`
}

// LoadForms reads the form directory seed used to populate the form repository at startup.
// Status defaults to active and tier to free.
func LoadForms(path string) ([]domain.Form, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read forms file: %w", err)
	}
	return ParseForms(b)
}

func ParseForms(b []byte) ([]domain.Form, error) {
	var doc formsFile
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parse forms file: %w", err)
	}

	out := make([]domain.Form, 0, len(doc.Forms))
	seen := make(map[domain.FormID]bool, len(doc.Forms))
	for i, s := range doc.Forms {
		f := domain.Form{
			ID:             domain.FormID(s.ID),
			OwnerID:        domain.OwnerID(s.OwnerID),
			Status:         domain.FormStatus(s.Status),
			Tier:           domain.Tier(s.Tier),
			AllowedOrigins: s.AllowedOrigins,
			WebhookURL:     s.WebhookURL,
			WebhookSecret:  s.WebhookSecret,
		}
		if f.Status == "" {
			f.Status = domain.FormActive
		}
		if f.Tier == "" {
			f.Tier = domain.TierFree
		}
		if !f.ID.Valid() {
			return nil, fmt.Errorf("forms[%d]: invalid id %q", i, s.ID)
		}
		if f.OwnerID == "" {
			return nil, fmt.Errorf("forms[%d]: owner_id is required", i)
		}
		switch f.Status {
		case domain.FormActive, domain.FormPaused, domain.FormDeleted:
		default:
			return nil, fmt.Errorf("forms[%d]: unknown status %q", i, s.Status)
		}
		switch f.Tier {
		case domain.TierFree, domain.TierPro, domain.TierTeam, domain.TierEnterprise:
		default:
			return nil, fmt.Errorf("forms[%d]: unknown tier %q", i, s.Tier)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("forms[%d]: duplicate id %q", i, s.ID)
		}
		seen[f.ID] = true
		out = append(out, f)
	}
	return out, nil
}
