package intent

import (
	"reflect"
	"testing"
)

func TestExtractPrice(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		query string
		price float64
		min   float64
		max   float64
	}{
		{"k suffix", "งบ 40K ครับ", 40000, 32000, 48000},
		{"baht unit", "มีงบ 15000 บาท", 15000, 12000, 18000},
		{"budget prefix", "งบ 25000 เล่นเกมได้ไหม", 25000, 20000, 30000},
		{"price prefix", "อยากได้ notebook ราคา 15000", 15000, 12000, 18000},
		{"thousands separator", "ราคา 15,000 พอไหม", 15000, 12000, 18000},
		{"upper bound", "ไม่เกิน 20000 มีรุ่นไหนบ้าง", 20000, 0, 20000},
		{"under english", "laptop under 30000", 30000, 0, 30000},
		{"approx", "ประมาณ 18000", 18000, 14400, 21600},
		{"no price", "รุ่นไหนดีครับ", 0, 0, 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			price, min, max := extractPrice(tc.query)
			if price != tc.price || min != tc.min || max != tc.max {
				t.Fatalf("extractPrice(%q) = (%v, %v, %v), want (%v, %v, %v)",
					tc.query, price, min, max, tc.price, tc.min, tc.max)
			}
		})
	}
}

func TestExtract_Brands(t *testing.T) {
	t.Parallel()

	e := NewExtractor([]string{"Acer", "Asus", "Lenovo"})
	got := e.Extract("เทียบ acer กับ lenovo หน่อยครับ")
	want := []string{"Acer", "Lenovo"}
	if !reflect.DeepEqual(got.Brands, want) {
		t.Fatalf("brands = %v, want %v", got.Brands, want)
	}
}

func TestExtract_UsageFirstMatchWins(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil)
	// Mentions both gaming and work; gaming is declared first.
	got := e.Extract("ใช้เล่นเกมกับทำงานด้วย")
	if got.UsageCategory != "gaming" {
		t.Fatalf("usage = %q, want gaming", got.UsageCategory)
	}
}

func TestExtract_ComponentsCollectAll(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil)
	got := e.Extract("รุ่นไหน ram 16GB มี ssd กับการ์ดจอ rtx")
	want := []string{"gpu", "ram", "storage"}
	if !reflect.DeepEqual(got.ComponentCategories, want) {
		t.Fatalf("components = %v, want %v", got.ComponentCategories, want)
	}
}

func TestExtract_GraphicsCardIsNotDisplay(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil)
	if got := e.Extract("การ์ดจอรุ่นไหนแรงสุด"); !reflect.DeepEqual(got.ComponentCategories, []string{"gpu"}) {
		t.Fatalf("components = %v, want [gpu]", got.ComponentCategories)
	}
	if got := e.Extract("หน้าจอสวยไหม"); !reflect.DeepEqual(got.ComponentCategories, []string{"display"}) {
		t.Fatalf("components = %v, want [display]", got.ComponentCategories)
	}
}

func TestExtract_ThaiQuery(t *testing.T) {
	t.Parallel()

	e := NewExtractor([]string{"Acer"})
	got := e.Extract("อยากได้ notebook acer เล่นเกมได้ งบ 20,000 บาทครับ")

	if !got.HasPrice() || got.Price != 20000 {
		t.Fatalf("price = %v, want 20000", got.Price)
	}
	if got.UsageCategory != "gaming" {
		t.Fatalf("usage = %q, want gaming", got.UsageCategory)
	}
	if len(got.Brands) != 1 || got.Brands[0] != "Acer" {
		t.Fatalf("brands = %v, want [Acer]", got.Brands)
	}
	found := false
	for _, tag := range got.Tags {
		if tag == "notebook" {
			found = true
		}
	}
	if !found {
		t.Fatalf("tags = %v, want notebook present", got.Tags)
	}
}

func TestExtract_NoSignals(t *testing.T) {
	t.Parallel()

	e := NewExtractor([]string{"Acer"})
	got := e.Extract("สวัสดีครับ ชอบช่องนี้มาก")
	if got.HasPrice() || got.Brands != nil || got.UsageCategory != "" ||
		got.ComponentCategories != nil || got.Tags != nil {
		t.Fatalf("expected zero intent, got %+v", got)
	}
}
