package models

import (
	"fmt"
	"strings"
	"time"
)

// ClaimKind distinguishes per-article news claims from per-section daily
// claims.
type ClaimKind string

const (
	ClaimKindNews    ClaimKind = "news"
	ClaimKindSection ClaimKind = "section"
)

// Sections that carry a once-per-day claim.
const (
	SectionTrading = "trading"
	SectionAirdrop = "airdrop"
)

// Claim is an immutable record of one granted reward. The composite unique
// index on (user_id, claim_key) is the sole double-claim defense: a
// conflicting insert is the signal that the reward was already granted, so
// concurrent requests for the same key cannot both succeed.
type Claim struct {
	ID        string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()" json:"id"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_claim_key" json:"user_id"`
	ClaimKey  string    `gorm:"size:96;not null;uniqueIndex:idx_user_claim_key" json:"claim_key"`
	Kind      ClaimKind `gorm:"size:16;not null;index" json:"kind"`
	Points    int64     `gorm:"not null" json:"points"`
	ClaimedAt time.Time `json:"claimed_at" gorm:"autoCreateTime"`
}

// ClaimKey is the parsed form of a claim-key string. News keys carry an
// article id; section keys embed the UTC date so they are naturally unique
// per section per day.
type ClaimKey struct {
	Kind      ClaimKind
	ArticleID string // news only
	Section   string // section only
	Date      string // section only, yyyy-mm-dd UTC
}

func NewsClaimKey(articleID string) ClaimKey {
	return ClaimKey{Kind: ClaimKindNews, ArticleID: articleID}
}

func SectionClaimKey(section string, day time.Time) ClaimKey {
	return ClaimKey{
		Kind:    ClaimKindSection,
		Section: section,
		Date:    day.UTC().Format("2006-01-02"),
	}
}

// String renders the wire/storage form: "news-<articleId>" or
// "<section>-<yyyy-mm-dd>".
func (k ClaimKey) String() string {
	if k.Kind == ClaimKindNews {
		return "news-" + k.ArticleID
	}
	return k.Section + "-" + k.Date
}

// BindingType maps a claim key to the IP-binding type it is guarded by.
func (k ClaimKey) BindingType() string {
	if k.Kind == ClaimKindNews {
		return BindingTypeNews
	}
	return k.Section
}

// ParseClaimKey is the inverse of String. Only well-formed keys parse;
// anything else is rejected instead of silently failing a prefix match.
func ParseClaimKey(s string) (ClaimKey, error) {
	if rest, ok := strings.CutPrefix(s, "news-"); ok {
		if rest == "" {
			return ClaimKey{}, fmt.Errorf("claim key %q: empty article id", s)
		}
		return NewsClaimKey(rest), nil
	}
	for _, section := range []string{SectionTrading, SectionAirdrop} {
		if rest, ok := strings.CutPrefix(s, section+"-"); ok {
			if _, err := time.Parse("2006-01-02", rest); err != nil {
				return ClaimKey{}, fmt.Errorf("claim key %q: bad date: %w", s, err)
			}
			return ClaimKey{Kind: ClaimKindSection, Section: section, Date: rest}, nil
		}
	}
	return ClaimKey{}, fmt.Errorf("claim key %q: unknown form", s)
}
