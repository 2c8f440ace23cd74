package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Segment is a named RFM customer tier
type Segment int

const (
	Others Segment = iota
	Champions
	LoyalCustomers
	PotentialLoyalists
	Promising
	AtRisk
	Hibernating
	Lost
	NewCustomers
)

var segmentNames = map[Segment]string{
	Others:             "Others",
	Champions:          "Champions",
	LoyalCustomers:     "Loyal Customers",
	PotentialLoyalists: "Potential Loyalists",
	Promising:          "Promising",
	AtRisk:             "At Risk",
	Hibernating:        "Hibernating",
	Lost:               "Lost",
	NewCustomers:       "New Customers",
}

// AllSegments returns every segment in presentation order
func AllSegments() []Segment {
	return []Segment{
		Champions, LoyalCustomers, PotentialLoyalists, Promising,
		NewCustomers, AtRisk, Hibernating, Lost, Others,
	}
}

func (s Segment) String() string {
	if name, ok := segmentNames[s]; ok {
		return name
	}
	return segmentNames[Others]
}

// ParseSegment converts a display name back into a Segment
func ParseSegment(name string) (Segment, error) {
	for seg, n := range segmentNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return seg, nil
		}
	}
	return Others, NewInvalidParameterError("segment", "unknown segment", name)
}

// MarshalJSON encodes the segment by display name
func (s Segment) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a segment display name
func (s *Segment) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("segment must be a string: %w", err)
	}
	seg, err := ParseSegment(name)
	if err != nil {
		return err
	}
	*s = seg
	return nil
}

// Priority ranks how urgently a segment needs attention
type Priority string

const (
	PriorityUrgent  Priority = "URGENT"
	PriorityHighest Priority = "HIGHEST"
	PriorityHigh    Priority = "HIGH"
	PriorityMedium  Priority = "MEDIUM"
	PriorityLow     Priority = "LOW"
)

// Recommendation is the marketing playbook attached to a segment
type Recommendation struct {
	Segment     Segment  `json:"segment"`
	Description string   `json:"description"`
	Actions     []string `json:"actions"`
	Priority    Priority `json:"priority"`
}

// RecommendationFor maps every segment to its playbook.
// Unknown values get the Others playbook.
func RecommendationFor(s Segment) Recommendation {
	switch s {
	case Champions:
		return Recommendation{
			Segment:     s,
			Description: "Best customers who buy often, spend the most and bought recently",
			Actions: []string{
				"Reward with VIP programs and exclusive offers",
				"Give early access to new products",
				"Ask for reviews, testimonials and referrals",
				"Assign personal account management",
			},
			Priority: PriorityHighest,
		}
	case LoyalCustomers:
		return Recommendation{
			Segment:     s,
			Description: "Regular buyers with good spend who respond to promotions",
			Actions: []string{
				"Upsell higher value and premium products",
				"Cross-sell complementary products",
				"Enroll in a loyalty points program",
				"Send birthday and anniversary rewards",
			},
			Priority: PriorityHigh,
		}
	case PotentialLoyalists:
		return Recommendation{
			Segment:     s,
			Description: "Recent customers with average frequency who could become loyal",
			Actions: []string{
				"Send personalized emails",
				"Recommend products based on purchase history",
				"Offer a discount on the next purchase",
				"Share educational content about the catalogue",
			},
			Priority: PriorityMedium,
		}
	case Promising:
		return Recommendation{
			Segment:     s,
			Description: "Recent shoppers who have not spent much yet",
			Actions: []string{
				"Run purchase frequency campaigns",
				"Create limited-time offers",
				"Suggest product bundles",
				"Show social proof and reviews",
			},
			Priority: PriorityMedium,
		}
	case AtRisk:
		return Recommendation{
			Segment:     s,
			Description: "Valuable customers who have not purchased for a while",
			Actions: []string{
				"Send win-back emails",
				"Offer reactivation discounts",
				"Survey them about their experience",
				"Reach out personally",
			},
			Priority: PriorityUrgent,
		}
	case Hibernating:
		return Recommendation{
			Segment:     s,
			Description: "Low spenders with low frequency whose last purchase was long ago",
			Actions: []string{
				"Offer deep-discount win-back deals",
				"Announce product updates and news",
				"Remind them of past purchases",
				"Run last-chance campaigns",
			},
			Priority: PriorityMedium,
		}
	case Lost:
		return Recommendation{
			Segment:     s,
			Description: "Lowest recency, frequency and monetary scores",
			Actions: []string{
				"Send a final win-back attempt",
				"Offer an aggressive discount of 50% or more",
				"Survey why they left",
				"Review whether reacquisition is cost-effective",
			},
			Priority: PriorityLow,
		}
	case NewCustomers:
		return Recommendation{
			Segment:     s,
			Description: "Bought very recently but only once",
			Actions: []string{
				"Start a welcome email series",
				"Provide onboarding support",
				"Give an incentive for the second purchase",
				"Educate them about the product range",
			},
			Priority: PriorityHigh,
		}
	default:
		return Recommendation{
			Segment:     Others,
			Description: "Customers that do not fit a defined segment",
			Actions: []string{
				"Monitor purchase behaviour",
				"Include in general marketing campaigns",
				"Refine segmentation rules",
				"Check data quality",
			},
			Priority: PriorityLow,
		}
	}
}

// ChurnRisk is a bounded ordinal churn category
type ChurnRisk int

const (
	ChurnLow ChurnRisk = iota
	ChurnMedium
	ChurnHigh
)

func (c ChurnRisk) String() string {
	switch c {
	case ChurnHigh:
		return "High"
	case ChurnMedium:
		return "Medium"
	default:
		return "Low"
	}
}

// MarshalJSON encodes the risk level by name
func (c ChurnRisk) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// ParseChurnRisk converts a name back into a ChurnRisk
func ParseChurnRisk(name string) (ChurnRisk, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "low":
		return ChurnLow, nil
	case "medium":
		return ChurnMedium, nil
	case "high":
		return ChurnHigh, nil
	}
	return ChurnLow, NewInvalidParameterError("churn_risk", "unknown churn risk", name)
}

// ValueTier buckets customers by predicted lifetime value
type ValueTier int

const (
	TierLow ValueTier = iota
	TierMedium
	TierHigh
)

func (v ValueTier) String() string {
	switch v {
	case TierHigh:
		return "High CLV"
	case TierMedium:
		return "Medium CLV"
	default:
		return "Low CLV"
	}
}

// MarshalJSON encodes the tier by name
func (v ValueTier) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a risk level name
func (c *ChurnRisk) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("churn risk must be a string: %w", err)
	}
	risk, err := ParseChurnRisk(name)
	if err != nil {
		return err
	}
	*c = risk
	return nil
}

// ParseValueTier converts a tier name back into a ValueTier
func ParseValueTier(name string) (ValueTier, error) {
	for _, tier := range []ValueTier{TierLow, TierMedium, TierHigh} {
		if strings.EqualFold(tier.String(), strings.TrimSpace(name)) {
			return tier, nil
		}
	}
	return TierLow, NewInvalidParameterError("clv_tier", "unknown value tier", name)
}

// UnmarshalJSON decodes a tier name
func (v *ValueTier) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return fmt.Errorf("value tier must be a string: %w", err)
	}
	tier, err := ParseValueTier(name)
	if err != nil {
		return err
	}
	*v = tier
	return nil
}
