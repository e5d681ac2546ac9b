package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParsePrice(t *testing.T) {
	tests := []struct {
		label  string
		want   int
		wantOK bool
	}{
		{"₹1,299", 1299, true},
		{"Rs. 499 only", 499, true},
		{"₹1,299 - ₹1,499", 1299, true},
		{"1,00,000", 100000, true},
		{"", 0, false},
		{"free", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := ParsePrice(tt.label)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBudget(t *testing.T) {
	tests := []struct {
		text   string
		want   int
		wantOK bool
	}{
		{"₹5,000", 5000, true},
		{"5000", 5000, true},
		{"under 25000 please", 25000, true},
		{"₹1,00,000", 100000, true},
		{"12345678", 1234567, true},
		{"99", 0, false},
		{"000", 0, false},
		{"cheap", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, ok := ParseBudget(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseBudget_AcceptsEveryChip(t *testing.T) {
	for _, chip := range BudgetChips {
		_, ok := ParseBudget(chip)
		assert.True(t, ok, chip)
	}
}

func TestFormatRupees(t *testing.T) {
	assert.Equal(t, "₹999", FormatRupees(999))
	assert.Equal(t, "₹1,000", FormatRupees(1000))
	assert.Equal(t, "₹25,000", FormatRupees(25000))
	assert.Equal(t, "₹1,50,000", FormatRupees(150000))
	assert.Equal(t, "₹12,34,567", FormatRupees(1234567))
}

func TestFilterProducts(t *testing.T) {
	products := []Product{
		{ID: "1", Title: "Cotton Kurta", Price: "₹799", Category: "Fashion", Section: "Deals"},
		{ID: "2", Title: "Silk Saree", Price: "₹4,999", Category: "Fashion", Section: "Best Sellers"},
		{ID: "3", Title: "Kurta Set", Price: "", Category: "Fashion", Section: "Picks"},
		{ID: "4", Title: "Phone", Price: "₹12,999", Category: "Mobile", Section: "Deals"},
	}

	t.Run("category and budget", func(t *testing.T) {
		got := FilterProducts(products, SearchCriteria{Category: "fashion", Budget: 1000})
		assert.Equal(t, []string{"1", "3"}, ids(got))
	})

	t.Run("subcategory matches title or section", func(t *testing.T) {
		got := FilterProducts(products, SearchCriteria{Category: "Fashion", Subcategory: "kurta", Budget: 5000})
		assert.Equal(t, []string{"1", "3"}, ids(got))

		got = FilterProducts(products, SearchCriteria{Category: "Fashion", Subcategory: "best sellers"})
		assert.Equal(t, []string{"2"}, ids(got))
	})

	t.Run("no criteria keeps everything", func(t *testing.T) {
		assert.Len(t, FilterProducts(products, SearchCriteria{}), 4)
	})
}

func ids(products []Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}
