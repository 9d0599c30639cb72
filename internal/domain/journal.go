package domain

import "time"

// ViewedProductRecord is one entry of the recently viewed journal.
type ViewedProductRecord struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	CategoryID string    `json:"category_id,omitempty"`
	ViewedAt   time.Time `json:"viewed_at"`
}

// SearchRecord is one entry of the search history journal.
type SearchRecord struct {
	Query      string    `json:"query"`
	SearchedAt time.Time `json:"searched_at"`
}

// CategoryAffinity counts how often a client viewed products of a category.
type CategoryAffinity struct {
	CategoryID   string    `json:"category_id"`
	ViewCount    int       `json:"view_count"`
	LastViewedAt time.Time `json:"last_viewed_at"`
}

// AffinitySnapshot bundles all journals of one client session.
type AffinitySnapshot struct {
	RecentlyViewed []ViewedProductRecord `json:"recently_viewed"`
	Searches       []SearchRecord        `json:"searches"`
	Categories     []CategoryAffinity    `json:"categories"`
}
