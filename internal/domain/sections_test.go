package domain

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSections_JSON(t *testing.T) {
	tests := []struct {
		name     string
		sections Sections
		want     string
	}{
		{
			name:     "empty sections",
			sections: Sections{},
			want:     `{"recently_viewed":[],"interest_based":[],"trending":[],"shown_ids":[]}`,
		},
		{
			name: "shown ids in section order",
			sections: Sections{
				RecentlyViewed: []Product{{ID: "a"}},
				Trending:       []Product{{ID: "c"}, {ID: "b"}},
				ShownIDs:       map[string]struct{}{"a": {}, "b": {}, "c": {}},
			},
			want: `{"recently_viewed":[{"id":"a","price":0}],"interest_based":[],"trending":[{"id":"c","price":0},{"id":"b","price":0}],"shown_ids":["a","c","b"]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.sections)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

func TestSections_UnmarshalRestoresShownIDs(t *testing.T) {
	var s Sections
	require.NoError(t, json.Unmarshal([]byte(`{"recently_viewed":[{"id":"a"}],"shown_ids":["a","x"]}`), &s))

	assert.Equal(t, []string{"a"}, ProductIDs(s.RecentlyViewed))
	assert.Equal(t, map[string]struct{}{"a": {}, "x": {}}, s.ShownIDs)
}
