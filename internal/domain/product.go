package domain

// Product is the canonical product shape every recommendation component works with.
// Optional references are empty strings when absent.
type Product struct {
	ID          string   `json:"id"`
	CategoryID  string   `json:"category_id,omitempty"` // Empty when uncategorized
	Price       float64  `json:"price"`                 // Zero when unknown
	Currency    string   `json:"currency,omitempty"`
	ShopID      string   `json:"shop_id,omitempty"` // Empty when no seller is assigned
	Title       string   `json:"title,omitempty"`
	Images      []string `json:"images,omitempty"`
	Description string   `json:"description,omitempty"`
}

// HasPrice reports whether price based matching applies to the product.
func (p Product) HasPrice() bool {
	return p.Price > 0
}

// Category is a node of a shop's (or the marketplace's) category forest.
type Category struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"` // Empty for roots
	Name     string `json:"name,omitempty"`
}

// ProductIDs returns the ids of products in order.
func ProductIDs(products []Product) []string {
	ids := make([]string, 0, len(products))
	for _, p := range products {
		ids = append(ids, p.ID)
	}
	return ids
}
