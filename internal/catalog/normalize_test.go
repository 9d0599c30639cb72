package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"storefront/recommender/internal/domain"
)

func TestNormalize_FieldAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want domain.Product
	}{
		{
			name: "canonical",
			raw:  `{"id":"p1","category_id":"c1","price":19.99,"currency":"usd","shop_id":"s1","title":"Brick","images":["a.png","b.png"]}`,
			want: domain.Product{ID: "p1", CategoryID: "c1", Price: 19.99, Currency: "USD", ShopID: "s1", Title: "Brick", Images: []string{"a.png", "b.png"}},
		},
		{
			name: "numeric id and cents",
			raw:  `{"product_id":42,"categoryId":7,"price_cents":1250,"shopId":"s2","name":"Plate","image_url":"p.png"}`,
			want: domain.Product{ID: "42", CategoryID: "7", Price: 12.5, Currency: "EUR", ShopID: "s2", Title: "Plate", Images: []string{"p.png"}},
		},
		{
			name: "nested pricing and seller",
			raw:  `{"_id":"x9","category":{"id":"c3"},"pricing":{"amount":"$1,299.00","currency":"gbp"},"seller":{"id":"s3"},"image":"i.jpg"}`,
			want: domain.Product{ID: "x9", CategoryID: "c3", Price: 1299, Currency: "GBP", ShopID: "s3", Images: []string{"i.jpg"}},
		},
		{
			name: "sku and store id with amount",
			raw:  `{"sku":"SKU-1","amount":5,"store_id":"s4","images":[{"url":"o.png"},{"url":""}]}`,
			want: domain.Product{ID: "SKU-1", Price: 5, Currency: "EUR", ShopID: "s4", Images: []string{"o.png"}},
		},
		{
			name: "negative price and blank refs",
			raw:  `{"id":"p5","price":-3,"category_id":"","shop_id":null}`,
			want: domain.Product{ID: "p5", Currency: "EUR"},
		},
		{
			name: "html description",
			raw:  `{"id":"p6","price":"abc","description":"<p>Red   <b>2x4</b></p><p>brick</p><script>x()</script>"}`,
			want: domain.Product{ID: "p6", Currency: "EUR", Description: "Red 2x4 brick"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(gjson.Parse(tt.raw), "eur")
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_MissingIDDropped(t *testing.T) {
	_, ok := Normalize(gjson.Parse(`{"title":"nameless","price":3}`), "USD")
	assert.False(t, ok)

	products := NewNormalizer("USD").Products(gjson.Parse(`{"items":[{"id":"a"},{"title":"no id"},{"sku":"b"}]}`))
	assert.Equal(t, []string{"a", "b"}, domain.ProductIDs(products))
}

func TestNormalizer_Categories(t *testing.T) {
	raw := gjson.Parse(`{"categories":[{"id":"c1","name":"Toys"},{"id":2,"parentId":"c1"},{"parent_id":"c1"}]}`)

	got := NewNormalizer("USD").Categories(raw)

	assert.Equal(t, []domain.Category{
		{ID: "c1", Name: "Toys"},
		{ID: "2", ParentID: "c1"},
	}, got)
}

func TestNormalizePrice(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{in: "19.99", want: 19.99},
		{in: "$1,299.50", want: 1299.5},
		{in: "1.299,50 €", want: 1299.5},
		{in: "12,50", want: 12.5},
		{in: "1,299", want: 1299},
		{in: "-4", want: 0},
		{in: "free", want: 0},
		{in: "", want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.InDelta(t, tt.want, NormalizePrice(tt.in), 1e-9)
		})
	}
}

func TestStripHTML(t *testing.T) {
	assert.Equal(t, "", StripHTML("   "))
	assert.Equal(t, "plain text", StripHTML(" plain \n text "))
	assert.Equal(t, "Tom & Jerry", StripHTML("Tom &amp; Jerry"))
	assert.Equal(t, "one two", StripHTML("<ul><li>one</li><li>two</li></ul>"))
}
