package catalog

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"storefront/recommender/internal/domain"
)

var (
	idPaths       = []string{"id", "product_id", "_id", "sku"}
	currencyPaths = []string{"currency", "pricing.currency"}
	categoryPaths = []string{"category_id", "categoryId", "category.id"}
	shopPaths     = []string{"shop_id", "shopId", "seller.id", "store_id"}
	titlePaths    = []string{"title", "name"}
	parentPaths   = []string{"parent_id", "parentId", "parent.id"}

	priceNoise = regexp.MustCompile(`[^0-9.,\-]`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Normalizer maps heterogeneous upstream product and category payloads to the canonical shapes.
// It is the only place that knows about field aliases.
type Normalizer struct {
	defaultCurrency string
}

func NewNormalizer(defaultCurrency string) *Normalizer {
	return &Normalizer{defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// Normalize maps one raw product. The second result is false when no id could be found.
func Normalize(raw gjson.Result, defaultCurrency string) (domain.Product, bool) {
	return NewNormalizer(defaultCurrency).Product(raw)
}

func (n *Normalizer) Product(raw gjson.Result) (domain.Product, bool) {
	id := firstString(raw, idPaths)
	if id == "" {
		log.WithField("payload", truncate(raw.Raw, 120)).Debug(domain.IntegrityWarning{Kind: "missing_id", Ref: "product"}.Error())
		return domain.Product{}, false
	}

	currency := strings.ToUpper(firstString(raw, currencyPaths))
	if currency == "" {
		currency = n.defaultCurrency
	}

	return domain.Product{
		ID:          id,
		CategoryID:  firstString(raw, categoryPaths),
		Price:       extractPrice(raw),
		Currency:    currency,
		ShopID:      firstString(raw, shopPaths),
		Title:       strings.TrimSpace(firstString(raw, titlePaths)),
		Images:      extractImages(raw),
		Description: StripHTML(raw.Get("description").String()),
	}, true
}

// Products maps a JSON array, or an object wrapping one under items, products or data.
// Elements without an id are dropped.
func (n *Normalizer) Products(raw gjson.Result) []domain.Product {
	items := unwrapList(raw, "products")
	out := make([]domain.Product, 0, len(items))
	for _, item := range items {
		if p, ok := n.Product(item); ok {
			out = append(out, p)
		}
	}
	return out
}

func (n *Normalizer) Category(raw gjson.Result) (domain.Category, bool) {
	id := firstString(raw, idPaths)
	if id == "" {
		return domain.Category{}, false
	}
	return domain.Category{
		ID:       id,
		ParentID: firstString(raw, parentPaths),
		Name:     firstString(raw, titlePaths),
	}, true
}

func (n *Normalizer) Categories(raw gjson.Result) []domain.Category {
	items := unwrapList(raw, "categories")
	out := make([]domain.Category, 0, len(items))
	for _, item := range items {
		if c, ok := n.Category(item); ok {
			out = append(out, c)
		}
	}
	return out
}

// NormalizePrice parses a price string that may carry currency symbols or thousands separators.
// Negative or unparsable values yield 0.
func NormalizePrice(s string) float64 {
	cleaned := priceNoise.ReplaceAllString(strings.TrimSpace(s), "")
	if cleaned == "" {
		return 0
	}

	// "1.299,50" and "1,299.50" both mean 1299.5
	lastDot := strings.LastIndex(cleaned, ".")
	lastComma := strings.LastIndex(cleaned, ",")
	thousandsOnly := lastDot == -1 && strings.Count(cleaned, ",") >= 1 && len(cleaned)-lastComma-1 == 3
	switch {
	case lastComma > lastDot && !thousandsOnly:
		cleaned = strings.ReplaceAll(cleaned, ".", "")
		cleaned = strings.Replace(cleaned, ",", ".", 1)
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return sanitizePrice(price)
}

// StripHTML returns the visible text of an HTML fragment with whitespace collapsed.
func StripHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	if !strings.ContainsAny(fragment, "<&") {
		return collapse(fragment)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return collapse(fragment)
	}
	doc.Find("script, style").Remove()
	doc.Find("br, p, li, div").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return collapse(doc.Text())
}

func extractPrice(raw gjson.Result) float64 {
	if v := raw.Get("price"); v.Exists() {
		return priceValue(v)
	}
	if v := raw.Get("price_cents"); v.Exists() {
		return sanitizePrice(priceValue(v) / 100)
	}
	if v := raw.Get("amount"); v.Exists() {
		return priceValue(v)
	}
	if v := raw.Get("pricing.amount"); v.Exists() {
		return priceValue(v)
	}
	return 0
}

func priceValue(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return sanitizePrice(v.Float())
	case gjson.String:
		return NormalizePrice(v.Str)
	case gjson.JSON:
		if amount := v.Get("amount"); amount.Exists() {
			return priceValue(amount)
		}
	}
	return 0
}

func sanitizePrice(price float64) float64 {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0
	}
	return price
}

func extractImages(raw gjson.Result) []string {
	var images []string
	if arr := raw.Get("images"); arr.IsArray() {
		for _, img := range arr.Array() {
			url := img.String()
			if img.IsObject() {
				url = img.Get("url").String()
			}
			if url != "" {
				images = append(images, url)
			}
		}
		return images
	}

	for _, path := range []string{"image_url", "image"} {
		if url := raw.Get(path).String(); url != "" {
			return []string{url}
		}
	}
	return nil
}

// firstString returns the first non-empty alias value. Numbers are stringified.
func firstString(raw gjson.Result, paths []string) string {
	for _, path := range paths {
		v := raw.Get(path)
		if !v.Exists() || v.Type == gjson.Null {
			continue
		}
		var s string
		switch v.Type {
		case gjson.Number:
			s = v.Raw
		default:
			s = strings.TrimSpace(v.String())
		}
		if s != "" {
			return s
		}
	}
	return ""
}

func unwrapList(raw gjson.Result, named string) []gjson.Result {
	if raw.IsArray() {
		return raw.Array()
	}
	for _, key := range []string{named, "items", "data"} {
		if v := raw.Get(key); v.IsArray() {
			return v.Array()
		}
	}
	return nil
}

func collapse(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
