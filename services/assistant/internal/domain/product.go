package domain

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/Uebook/Luna-sub002/pkg/slug"
)

// Product is one catalog item the search flow can return.
type Product struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Price    string `json:"price"`
	Image    string `json:"img,omitempty"`
	Thumb    string `json:"thumb,omitempty"`
	Category string `json:"category"`
	Section  string `json:"section"`
}

// Catalog is the read side of the product catalog.
type Catalog interface {
	// Categories returns the category names offered as chips.
	Categories() []string
	// Subcategories returns the sub-category chips of category, possibly none.
	Subcategories(category string) []string
	// Products returns every indexed product.
	Products() []Product
}

// SearchCriteria are the answers collected by the product search flow.
type SearchCriteria struct {
	Category    string
	Subcategory string
	Budget      int
}

var (
	priceRun  = regexp.MustCompile(`\d[\d,]*`)
	budgetRun = regexp.MustCompile(`\d{3,7}`)
)

// ParsePrice returns the first number in a price label such as "₹1,299".
func ParsePrice(label string) (int, bool) {
	m := priceRun.FindString(label)
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return 0, false
	}
	return n, true
}

// ParseBudget reads a budget from free text: commas are dropped and the first
// run of 3 to 7 digits is used. "₹5,000" and "under 5000 please" both yield
// 5000. A zero budget is rejected.
func ParseBudget(text string) (int, bool) {
	m := budgetRun.FindString(strings.ReplaceAll(text, ",", ""))
	if m == "" {
		return 0, false
	}
	n, err := strconv.Atoi(m)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

// FormatRupees formats n with Indian digit grouping, e.g. 150000 as ₹1,50,000.
func FormatRupees(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return "₹" + s
	}

	head, tail := s[:len(s)-3], s[len(s)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	groups = append([]string{head}, groups...)
	return "₹" + strings.Join(groups, ",") + "," + tail
}

// FilterProducts keeps the products matching c. A product matches when it is
// in the category, its title or section mentions the sub-category, and its
// price does not exceed the budget. Products without a readable price pass
// the budget check.
func FilterProducts(products []Product, c SearchCriteria) []Product {
	sub := strings.ToLower(strings.TrimSpace(c.Subcategory))

	out := make([]Product, 0, len(products))
	for _, p := range products {
		if c.Category != "" && !slug.Equal(p.Category, c.Category) {
			continue
		}
		if sub != "" && !strings.Contains(strings.ToLower(p.Title+" "+p.Section), sub) {
			continue
		}
		if c.Budget > 0 {
			if price, ok := ParsePrice(p.Price); ok && price > c.Budget {
				continue
			}
		}
		out = append(out, p)
	}
	return out
}
