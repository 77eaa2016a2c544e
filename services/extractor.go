package services

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"shopee-research/models"
	"shopee-research/utils"
)

// PriceScale is the search API's integer price encoding: 1 RM == 100000.
const PriceScale = 100000.0

// LinkStyle selects how product URLs are built.
type LinkStyle string

const (
	// LinkSlug builds https://<site>/<slug>-i.<shopid>.<itemid>.
	LinkSlug LinkStyle = "slug"
	// LinkProduct builds https://<site>/product/<shopid>/<itemid>.
	LinkProduct LinkStyle = "product"
)

const placeholderName = "N/A"

// Extractor turns RawListings into ProductRecords.
type Extractor struct {
	logger     *utils.Logger
	siteURL    string
	linkStyle  LinkStyle
	nameMaxLen int
}

// NewExtractor creates an Extractor. nameMaxLen <= 0 disables truncation.
func NewExtractor(logger *utils.Logger, siteURL string, style LinkStyle, nameMaxLen int) *Extractor {
	if style != LinkProduct {
		style = LinkSlug
	}
	return &Extractor{
		logger:     logger,
		siteURL:    strings.TrimRight(siteURL, "/"),
		linkStyle:  style,
		nameMaxLen: nameMaxLen,
	}
}

// Extract flattens one listing. ok is false when the listing must be
// skipped: no usable name, no price, or a present field of the wrong type.
func (e *Extractor) Extract(raw models.RawListing, keyword string) (rec models.ProductRecord, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Debug("[extractor] listing panicked during extraction: %v", r)
			rec, ok = models.ProductRecord{}, false
		}
	}()

	name := normaliseText(raw.LookupString("", "item_basic", "name"))
	if name == "" || name == placeholderName {
		return models.ProductRecord{}, false
	}

	priceRaw, present := raw.Lookup("item_basic", "price")
	if !present {
		return models.ProductRecord{}, false
	}
	price, err := toFloat(priceRaw)
	if err != nil {
		e.logger.Debug("[extractor] %q: price: %v", name, err)
		return models.ProductRecord{}, false
	}

	rating, err := optionalFloat(raw, "item_basic", "item_rating", "rating_star")
	if err != nil {
		e.logger.Debug("[extractor] %q: rating: %v", name, err)
		return models.ProductRecord{}, false
	}
	sales, err := optionalInt(raw, "item_basic", "historical_sold")
	if err != nil {
		e.logger.Debug("[extractor] %q: historical_sold: %v", name, err)
		return models.ProductRecord{}, false
	}
	stock, err := optionalInt(raw, "item_basic", "stock")
	if err != nil {
		e.logger.Debug("[extractor] %q: stock: %v", name, err)
		return models.ProductRecord{}, false
	}

	shopID := identifier(raw, "item_basic", "shopid")
	itemID := identifier(raw, "item_basic", "itemid")
	name = truncateRunes(name, e.nameMaxLen)

	return models.ProductRecord{
		Keyword:      keyword,
		Name:         name,
		Price:        price / PriceScale,
		Sales:        sales,
		Rating:       rating,
		Stock:        stock,
		ShopLocation: normaliseText(raw.LookupString("", "item_basic", "shop_location")),
		ShopName:     normaliseText(raw.LookupString("", "item_basic", "shop_name")),
		ShopID:       shopID,
		ItemID:       itemID,
		URL:          e.productURL(name, shopID, itemID),
	}, true
}

// ExtractAll extracts every listing in order, dropping the unusable ones.
func (e *Extractor) ExtractAll(raw []models.RawListing, keyword string) (records []models.ProductRecord, skipped int) {
	records = make([]models.ProductRecord, 0, len(raw))
	for _, r := range raw {
		rec, ok := e.Extract(r, keyword)
		if !ok {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	if skipped > 0 {
		e.logger.Debug("[extractor] %q: extracted %d, skipped %d", keyword, len(records), skipped)
	}
	return records, skipped
}

func (e *Extractor) productURL(name, shopID, itemID string) string {
	if e.linkStyle == LinkProduct {
		return fmt.Sprintf("%s/product/%s/%s", e.siteURL, shopID, itemID)
	}
	slug := Slugify(name)
	if slug == "" {
		return fmt.Sprintf("%s/-i.%s.%s", e.siteURL, shopID, itemID)
	}
	return fmt.Sprintf("%s/%s-i.%s.%s", e.siteURL, slug, shopID, itemID)
}

var stripMarks = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Slugify folds s to a URL path segment: accents removed, every run of
// non letters/digits collapsed to a single '-', no leading or trailing '-'.
func Slugify(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}

func optionalFloat(raw models.RawListing, path ...string) (float64, error) {
	v, ok := raw.Lookup(path...)
	if !ok {
		return 0, nil
	}
	return toFloat(v)
}

func optionalInt(raw models.RawListing, path ...string) (int64, error) {
	v, ok := raw.Lookup(path...)
	if !ok {
		return 0, nil
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// identifier renders an id field as decimal text, "0" when absent.
func identifier(raw models.RawListing, path ...string) string {
	v, ok := raw.Lookup(path...)
	if !ok {
		return "0"
	}
	switch id := v.(type) {
	case json.Number:
		return id.String()
	case string:
		if s := strings.TrimSpace(id); s != "" {
			return s
		}
		return "0"
	case float64:
		return strconv.FormatInt(int64(id), 10)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return "0"
	}
}

// toFloat coerces JSON numbers, numeric strings and Go numerics.
func toFloat(v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, err
		}
		f = parsed
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, err
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite value %v", f)
	}
	return f, nil
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
