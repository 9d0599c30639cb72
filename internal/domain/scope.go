package domain

// Scope selects the catalog a request works against.
type Scope struct {
	ShopID string `json:"shop_id,omitempty"` // Empty for the whole marketplace
}

// Marketplace is the scope spanning every shop.
var Marketplace = Scope{}

// IsMarketplace reports whether the scope spans every shop.
func (s Scope) IsMarketplace() bool {
	return s.ShopID == ""
}

// Key returns a stable cache key for the scope.
func (s Scope) Key() string {
	if s.IsMarketplace() {
		return "marketplace"
	}
	return "shop:" + s.ShopID
}

type Mode string

func (m Mode) String() string {
	return string(m)
}

const (
	ModeSingleSeller Mode = "single-seller" // One shop's catalog
	ModeMultiSeller  Mode = "multi-seller"  // Candidates span independent shops
)

// ModeFor returns the recommendation mode matching a scope.
func ModeFor(scope Scope) Mode {
	if scope.IsMarketplace() {
		return ModeMultiSeller
	}
	return ModeSingleSeller
}

// PoolFilter narrows a candidate pool fetch.
type PoolFilter struct {
	CategoryIDs []string `json:"category_ids,omitempty"`
	Limit       int      `json:"limit,omitempty"`
}
