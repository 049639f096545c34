package domain

type FormStatus string

const (
	FormActive  FormStatus = "active"
	FormPaused  FormStatus = "paused"
	FormDeleted FormStatus = "deleted"
)

// Tier is the owner's subscription plan. Limits per tier are configuration, not domain.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierTeam       Tier = "team"
	TierEnterprise Tier = "enterprise"
)

// Form is the subset of a form record the ingestion pipeline reads.
type Form struct {
	ID      FormID
	OwnerID OwnerID
	Status  FormStatus
	Tier    Tier

	// AllowedOrigins empty means any origin. "*" also allows any origin.
	AllowedOrigins []string

	WebhookURL    string
	WebhookSecret string

	SubmissionCount int
}

// HasWebhook reports whether submissions should be forwarded.
func (f Form) HasWebhook() bool { return f.WebhookURL != "" }

// AllowsOrigin checks origin against the allow-list using normalized scheme+host comparison.
func (f Form) AllowsOrigin(origin string) bool {
	if len(f.AllowedOrigins) == 0 {
		return true
	}
	o := NormalizeOrigin(origin)
	for _, allowed := range f.AllowedOrigins {
		if allowed == "*" {
			return true
		}
		if o != "" && NormalizeOrigin(allowed) == o {
			return true
		}
	}
	return false
}
