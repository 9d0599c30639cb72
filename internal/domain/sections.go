package domain

import "github.com/goccy/go-json"

// Sections are the three marketplace groupings shown on a browsing page.
type Sections struct {
	RecentlyViewed []Product
	InterestBased  []Product
	Trending       []Product

	// ShownIDs holds every id present in the three sections.
	ShownIDs map[string]struct{}
}

type sectionsJSON struct {
	RecentlyViewed []Product `json:"recently_viewed"`
	InterestBased  []Product `json:"interest_based"`
	Trending       []Product `json:"trending"`
	ShownIDs       []string  `json:"shown_ids"`
}

// ShownIDList returns ShownIDs in section order.
func (s *Sections) ShownIDList() []string {
	ids := make([]string, 0, len(s.ShownIDs))
	for _, group := range [][]Product{s.RecentlyViewed, s.InterestBased, s.Trending} {
		ids = append(ids, ProductIDs(group)...)
	}
	return ids
}

// MarshalJSON writes empty sections as [] and lists the shown ids in section order.
func (s Sections) MarshalJSON() ([]byte, error) {
	return json.Marshal(sectionsJSON{
		RecentlyViewed: nonNil(s.RecentlyViewed),
		InterestBased:  nonNil(s.InterestBased),
		Trending:       nonNil(s.Trending),
		ShownIDs:       s.ShownIDList(),
	})
}

func (s *Sections) UnmarshalJSON(data []byte) error {
	var raw sectionsJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = Sections{
		RecentlyViewed: raw.RecentlyViewed,
		InterestBased:  raw.InterestBased,
		Trending:       raw.Trending,
		ShownIDs:       make(map[string]struct{}, len(raw.ShownIDs)),
	}
	for _, id := range raw.ShownIDs {
		s.ShownIDs[id] = struct{}{}
	}
	return nil
}

func nonNil(products []Product) []Product {
	if products == nil {
		return []Product{}
	}
	return products
}

// RankedProduct is a related item together with the tier that selected it.
type RankedProduct struct {
	Product Product `json:"product"`
	Tier    string  `json:"tier"`
}

// ProductPage holds the on-page lists computed for a focal product.
type ProductPage struct {
	Focal       Product         `json:"focal"`
	Related     []RankedProduct `json:"related"`
	ExploreMore []Product       `json:"explore_more"`
	Mode        Mode            `json:"mode"`
}
