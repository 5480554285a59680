// Package intent derives structured query signals from free-text comments:
// mentioned brands, a detected price budget, usage and component categories,
// and free tags. Comments are predominantly Thai with mixed English product
// vocabulary, so every keyword axis carries both scripts.
package intent

import (
	"regexp"
	"strconv"
	"strings"
)

// Intent holds the signals extracted from one query.
type Intent struct {
	// Brands are the known brand names mentioned in the query.
	Brands []string

	// Price is the detected budget amount. Zero means no price was detected.
	Price float64

	// PriceMin and PriceMax bound the acceptable price range derived from
	// the detected budget. Both zero when no price was detected.
	PriceMin float64
	PriceMax float64

	// UsageCategory is the first matching usage axis value, or empty.
	UsageCategory string

	// ComponentCategories are the matching component axis values.
	ComponentCategories []string

	// Tags are free keyword tags matched against the tag vocabulary.
	Tags []string
}

// HasPrice reports whether a budget was detected.
func (i Intent) HasPrice() bool { return i.Price > 0 }

// Extractor parses queries against a configurable brand list and the fixed
// category vocabularies. Safe for concurrent use after construction.
type Extractor struct {
	// brands is the list of known brand names, checked for literal mention.
	brands []string
}

// NewExtractor constructs an Extractor that recognizes the given brand names.
func NewExtractor(brands []string) *Extractor {
	return &Extractor{brands: brands}
}

// Price literal patterns, tried in priority order — first match wins.
// Thousands separators are stripped before matching.
var pricePatterns = []struct {
	re    *regexp.Regexp
	scale float64
	// capped marks patterns that express an upper bound ("not exceeding"),
	// which maps onto a [0, price] range instead of a band around the price.
	capped bool
}{
	{re: regexp.MustCompile(`(\d+)[kK]\b`), scale: 1000},
	{re: regexp.MustCompile(`(\d+)\s*(?:บาท|baht)`), scale: 1},
	{re: regexp.MustCompile(`(?:งบ|budget)\s*(\d+)`), scale: 1},
	{re: regexp.MustCompile(`(?:ราคา|price)\s*(\d+)`), scale: 1},
	{re: regexp.MustCompile(`(?:ไม่เกิน|under|ไม่ถึง)\s*(\d+)`), scale: 1, capped: true},
	{re: regexp.MustCompile(`(?:ประมาณ|ราวๆ|around|about)\s*(\d+)`), scale: 1},
	{re: regexp.MustCompile(`\$(\d+)`), scale: 1},
}

// thousandsRe matches separators inside digit groups ("15,000" → "15000").
var thousandsRe = regexp.MustCompile(`(\d),(\d)`)

// usageVocabulary maps each usage category to its keyword set. Detection is
// first-match in declaration order.
var usageVocabulary = []struct {
	category string
	keywords []string
}{
	{"gaming", []string{"เกม", "เล่นเกม", "gaming", "game", "fps", "esport"}},
	{"work", []string{"ทำงาน", "ออฟฟิศ", "work", "office", "excel", "ประชุม"}},
	{"study", []string{"เรียน", "นักศึกษา", "นักเรียน", "study", "student", "การบ้าน"}},
	{"creator", []string{"ตัดต่อ", "กราฟิก", "editing", "render", "สตรีม", "stream", "วาดรูป"}},
	{"travel", []string{"พกพา", "เดินทาง", "น้ำหนักเบา", "portable", "travel", "lightweight"}},
}

// componentVocabulary maps each component category to its keyword set.
// Unlike usage, every matching axis value is collected.
var componentVocabulary = []struct {
	category string
	keywords []string
}{
	{"cpu", []string{"cpu", "ryzen", "intel", "core i", "processor", "ซีพียู"}},
	{"gpu", []string{"gpu", "การ์ดจอ", "rtx", "gtx", "radeon", "graphics"}},
	{"ram", []string{"ram", "แรม", "memory", "16gb", "32gb", "8gb"}},
	{"storage", []string{"ssd", "nvme", "ฮาร์ดดิสก์", "harddisk", "storage", "1tb", "512gb"}},
	// "จอ" alone is too loose: it is a substring of การ์ดจอ (graphics card).
	{"display", []string{"หน้าจอ", "จอภาพ", "display", "oled", "144hz", "120hz", "2k", "4k"}},
	{"battery", []string{"แบต", "แบตเตอรี่", "battery", "ชาร์จ"}},
	{"keyboard", []string{"คีย์บอร์ด", "keyboard", "mechanical"}},
}

// tagVocabulary is the free-tag axis: product kinds and qualifiers worth
// carrying into prefilter tag matching.
var tagVocabulary = []string{
	"notebook", "โน้ตบุ๊ค", "โน๊ตบุ๊ค", "laptop",
	"มือถือ", "smartphone", "โทรศัพท์", "phone",
	"หูฟัง", "headphone", "earbuds",
	"เมาส์", "mouse", "จอมอนิเตอร์", "monitor",
	"แท็บเล็ต", "tablet", "ลำโพง", "speaker",
	"คุ้มค่า", "งบน้อย", "รุ่นใหม่",
}

// Extract parses the query into an Intent. Extraction never fails; a query
// with no recognizable signals yields the zero Intent.
func (e *Extractor) Extract(query string) Intent {
	var out Intent
	lower := strings.ToLower(query)

	out.Price, out.PriceMin, out.PriceMax = extractPrice(lower)

	for _, b := range e.brands {
		if b != "" && strings.Contains(lower, strings.ToLower(b)) {
			out.Brands = append(out.Brands, b)
		}
	}

	for _, u := range usageVocabulary {
		if containsAny(lower, u.keywords) {
			out.UsageCategory = u.category
			break
		}
	}

	for _, c := range componentVocabulary {
		if containsAny(lower, c.keywords) {
			out.ComponentCategories = append(out.ComponentCategories, c.category)
		}
	}

	for _, tag := range tagVocabulary {
		if strings.Contains(lower, tag) {
			out.Tags = append(out.Tags, tag)
		}
	}

	return out
}

// extractPrice runs the price patterns in priority order against the query
// with thousands separators stripped. The first match wins. A plain budget
// maps onto a ±20% band; an upper-bound phrasing maps onto [0, price].
func extractPrice(lower string) (price, min, max float64) {
	stripped := thousandsRe.ReplaceAllString(lower, "$1$2")
	// A single replacement pass leaves alternating separators ("1,000,000");
	// repeat until stable.
	for {
		next := thousandsRe.ReplaceAllString(stripped, "$1$2")
		if next == stripped {
			break
		}
		stripped = next
	}

	for _, p := range pricePatterns {
		m := p.re.FindStringSubmatch(stripped)
		if m == nil {
			continue
		}
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil || n <= 0 {
			continue
		}
		price = n * p.scale
		if p.capped {
			return price, 0, price
		}
		return price, price * 0.8, price * 1.2
	}
	return 0, 0, 0
}

// containsAny reports whether s contains any of the keywords.
func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
