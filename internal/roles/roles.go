// ABOUTME: Role catalog: well-known roles, specialist set and Japanese display labels
// ABOUTME: Resolves the display name shown on a message bubble for a role and lane

package roles

import (
	"maps"
	"slices"

	"github.com/2389/coven-lanes/internal/lane"
)

// Well-known roles.
const (
	User      = "user"
	Motivator = "motivator_ai"
	System    = "system"
)

const (
	userDisplayName   = "あなた"
	systemDisplayName = "システム"
	motivatorFallback = "統括M"
)

// DefaultSpecialists are the roles whose untagged events get their own
// consultation lane.
func DefaultSpecialists() []string {
	return []string{"idea_ai", "writer_ai", "proof_ai", "pm_ai"}
}

// DefaultLabels returns the built-in role label table.
func DefaultLabels() map[string]string {
	return map[string]string{
		"idea_ai":            "企画アドバイザー",
		"writer_ai":          "ライターAI",
		"proof_ai":           "校正AI",
		"pm_ai":              "全体進行（PM補助）",
		"product_manager_ai": "プロダクト企画",
		"project_manager_ai": "プロジェクト進行",
		"architect_ai":       "アーキテクト",
		"dev_ai":             "開発エンジニア",
		"motivator_ai":       "統括M",

		"cust_bce7cc85":            "CFO 財務責任者",
		"cust_biz_dev_manager":     "ビジネス開発マネージャー",
		"cust_sales_marketing":     "営業・マーケティング担当",
		"cust_business_analyst":    "ビジネスアナリスト",
		"cust_market_research":     "市場調査アナリスト",
		"cust_competitive_analyst": "競合分析スペシャリスト",
		"cust_financial_analyst":   "財務アナリスト",
		"cust_uiux_designer":       "UI/UXデザイナー",
		"cust_legal_compliance":    "法務・コンプライアンス担当",
		"cust_tech_lead":           "技術リーダー/ソフトウェアアーキテクト",
	}
}

// Catalog maps role ids to labels. It is read-only after construction.
type Catalog struct {
	labels      map[string]string
	specialists []string
}

// NewCatalog builds a catalog. Labels are layered over DefaultLabels; a nil
// specialists slice selects DefaultSpecialists.
func NewCatalog(labels map[string]string, specialists []string) *Catalog {
	merged := DefaultLabels()
	maps.Copy(merged, labels)
	if specialists == nil {
		specialists = DefaultSpecialists()
	}
	return &Catalog{
		labels:      merged,
		specialists: slices.Clone(specialists),
	}
}

// Specialists returns the specialist role ids.
func (c *Catalog) Specialists() []string { return slices.Clone(c.specialists) }

// Label returns the label for a role id, or the id itself.
func (c *Catalog) Label(id string) string {
	if label, ok := c.labels[id]; ok && label != "" {
		return label
	}
	return id
}

// DisplayName returns the name shown on a bubble authored by role in l.
// Consultation lanes are named after their lane role, except for the
// motivator, which keeps its own name everywhere.
func (c *Catalog) DisplayName(role string, l lane.Lane) string {
	switch role {
	case User:
		return userDisplayName
	case System:
		return systemDisplayName
	case Motivator:
		if label, ok := c.labels[Motivator]; ok && label != "" {
			return label
		}
		return motivatorFallback
	}
	if !l.IsMain() {
		return c.Label(l.Role())
	}
	return c.Label(role)
}
