package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/Uebook/Luna-sub002/pkg/slug"
	"github.com/Uebook/Luna-sub002/services/assistant/internal/domain"
)

// MaxSubcategories caps the sub-category chips offered for one category.
const MaxSubcategories = 8

// Sections are the product lists of a category that feed the search index,
// in index order.
var Sections = []string{"deals", "picks", "trending", "bestSellers", "newArrivals", "flash", "celebPicks"}

// Data is a catalog document as stored in a YAML file or served by the
// product service.
type Data struct {
	Categories Categories `yaml:"categories" json:"categories"`
}

// Categories keeps categories in document order.
type Categories []Category

// Category is one named category of a catalog document.
type Category struct {
	Name string
	CategoryData
}

// CategoryData holds the sub-categories and product sections of a category.
type CategoryData struct {
	Subcats     []Subcategory `yaml:"subcats" json:"subcats"`
	Deals       []Item        `yaml:"deals" json:"deals"`
	Picks       []Item        `yaml:"picks" json:"picks"`
	Trending    []Item        `yaml:"trending" json:"trending"`
	BestSellers []Item        `yaml:"bestSellers" json:"bestSellers"`
	NewArrivals []Item        `yaml:"newArrivals" json:"newArrivals"`
	Flash       []Item        `yaml:"flash" json:"flash"`
	CelebPicks  []Item        `yaml:"celebPicks" json:"celebPicks"`
}

// Subcategory is a sub-category chip. T is its label.
type Subcategory struct {
	T string `yaml:"t" json:"t"`
}

// Item is a product entry of a section.
type Item struct {
	ID    string `yaml:"id" json:"id"`
	Title string `yaml:"title" json:"title"`
	Price string `yaml:"price" json:"price"`
	Img   string `yaml:"img" json:"img"`
	Thumb string `yaml:"thumb" json:"thumb"`
}

func (d CategoryData) section(name string) []Item {
	switch name {
	case "deals":
		return d.Deals
	case "picks":
		return d.Picks
	case "trending":
		return d.Trending
	case "bestSellers":
		return d.BestSellers
	case "newArrivals":
		return d.NewArrivals
	case "flash":
		return d.Flash
	case "celebPicks":
		return d.CelebPicks
	default:
		return nil
	}
}

// UnmarshalYAML decodes a mapping of category name to category data.
func (c *Categories) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("categories: line %d: want a mapping of category names", node.Line)
	}

	out := make(Categories, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var data CategoryData
		if err := node.Content[i+1].Decode(&data); err != nil {
			return fmt.Errorf("category %q: %w", node.Content[i].Value, err)
		}
		out = append(out, Category{Name: node.Content[i].Value, CategoryData: data})
	}
	*c = out
	return nil
}

// UnmarshalJSON decodes an object of category name to category data.
func (c *Categories) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*c = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("categories: want an object of category names")
	}

	var out Categories
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)

		var data CategoryData
		if err := dec.Decode(&data); err != nil {
			return fmt.Errorf("category %q: %w", name, err)
		}
		out = append(out, Category{Name: name, CategoryData: data})
	}
	*c = out
	return nil
}

// Catalog is an indexed catalog document. It is immutable once built.
type Catalog struct {
	categories []string
	subcats    map[string][]string
	products   []domain.Product
}

// New indexes data. Categories without a name are skipped.
func New(data Data) *Catalog {
	c := &Catalog{subcats: make(map[string][]string)}
	seen := make(map[string]struct{})

	for _, cat := range data.Categories {
		name := strings.TrimSpace(cat.Name)
		if name == "" {
			continue
		}
		c.categories = append(c.categories, name)
		c.subcats[slug.Generate(name)] = subcategoryNames(cat.Subcats)

		for _, section := range Sections {
			for _, it := range cat.section(section) {
				if it.ID == "" && it.Title == "" {
					continue
				}
				key := it.ID
				if key == "" {
					key = it.Title
				}
				id := name + "-" + section + "-" + key
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}

				c.products = append(c.products, domain.Product{
					ID:       id,
					Title:    it.Title,
					Price:    it.Price,
					Image:    it.Img,
					Thumb:    it.Thumb,
					Category: name,
					Section:  Humanize(section),
				})
			}
		}
	}
	return c
}

// Static returns a catalog that only lists the default categories.
func Static() *Catalog {
	data := Data{}
	for _, name := range domain.DefaultCategories {
		data.Categories = append(data.Categories, Category{Name: name})
	}
	return New(data)
}

// Categories returns the category names in document order.
func (c *Catalog) Categories() []string {
	return append([]string(nil), c.categories...)
}

// Subcategories returns the sub-category labels of category.
func (c *Catalog) Subcategories(category string) []string {
	return append([]string(nil), c.subcats[slug.Generate(category)]...)
}

// Products returns the product index. Callers must not modify it.
func (c *Catalog) Products() []domain.Product {
	return c.products
}

// Humanize turns a section key such as "bestSellers" into "Best Sellers".
func Humanize(key string) string {
	var b strings.Builder
	for i, r := range key {
		switch {
		case i == 0:
			b.WriteRune(unicode.ToUpper(r))
		case unicode.IsUpper(r):
			b.WriteRune(' ')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

func subcategoryNames(subs []Subcategory) []string {
	seen := make(map[string]struct{}, len(subs))
	var names []string
	for _, s := range subs {
		t := strings.TrimSpace(s.T)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		names = append(names, t)
		if len(names) == MaxSubcategories {
			break
		}
	}
	return names
}

var _ domain.Catalog = (*Catalog)(nil)
