package domain

import (
	"fmt"
	"strings"
)

// DefaultCategories are offered when no catalog lists any.
var DefaultCategories = []string{"Fashion", "Mobile", "Electronics", "Appliances", "Beauty", "Home"}

// BudgetChips are the quick replies of the budget step.
var BudgetChips = []string{"₹1,000", "₹5,000", "₹10,000", "₹25,000", "₹50,000"}

// SearchAnswers is what the product search flow has collected.
type SearchAnswers struct {
	Category    string `json:"category,omitempty"`
	Subcategory string `json:"subcategory,omitempty"`
	Budget      int    `json:"budget,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// ProductSearch walks a shopper through category, sub-category and budget and
// then lists the matching products.
type ProductSearch struct {
	catalog Catalog
	step    Step
	answers SearchAnswers
	results []Product
}

// NewProductSearch starts a search at the category step.
func NewProductSearch(catalog Catalog) *ProductSearch {
	return &ProductSearch{catalog: catalog, step: StepCategory}
}

func (f *ProductSearch) Kind() FlowKind { return FlowProductSearch }

func (f *ProductSearch) Step() Step { return f.step }

func (f *ProductSearch) Done() bool { return f.step == StepResults }

func (f *ProductSearch) Answers() any { return f.answers }

func (f *ProductSearch) Results() []Product { return f.results }

func (f *ProductSearch) Start() []Message {
	return []Message{
		botSays("Hey! I'll help you find the perfect product. What category are you shopping for?", f.categories()...),
	}
}

func (f *ProductSearch) Handle(text string) (Transition, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Transition{}, ErrEmptyReply
	}

	t := Transition{From: f.step}
	switch f.step {
	case StepCategory:
		t.Messages = f.handleCategory(text)
	case StepSubcategory:
		t.Messages = f.handleSubcategory(text)
	case StepBudget:
		t.Messages = f.handleBudget(text)
	default:
		return Transition{}, ErrFlowFinished
	}
	t.To = f.step
	return t, nil
}

func (f *ProductSearch) handleCategory(text string) []Message {
	categories := f.categories()
	category, ok := matchChoice(categories, text)
	if !ok {
		return []Message{userSays(text), botSays("Please choose a category:", categories...)}
	}

	f.answers = SearchAnswers{Category: category}
	msgs := []Message{userSays(category)}

	if subs := f.subcategories(); len(subs) > 0 {
		f.step = StepSubcategory
		return append(msgs, botSays("Nice! Pick a sub-category:", subs...))
	}
	f.step = StepBudget
	return append(msgs, botSays("Cool. What's your max budget? You can type or pick below:", BudgetChips...))
}

func (f *ProductSearch) handleSubcategory(text string) []Message {
	subs := f.subcategories()
	sub := text
	if len(subs) > 0 {
		match, ok := matchChoice(subs, text)
		if !ok {
			return []Message{userSays(text), botSays("Pick one of the sub-categories below or type your own:", subs...)}
		}
		sub = match
	}

	f.answers.Subcategory = sub
	f.step = StepBudget
	return []Message{
		userSays(sub),
		botSays("Great! What's your max budget? You can type or pick below:", BudgetChips...),
	}
}

func (f *ProductSearch) handleBudget(text string) []Message {
	budget, ok := ParseBudget(text)
	if !ok {
		return []Message{userSays(text), botSays("Enter a number like 5000, or pick a chip:", BudgetChips...)}
	}

	f.answers.Budget = budget
	f.answers.Summary = summarize(f.answers)

	var products []Product
	if f.catalog != nil {
		products = f.catalog.Products()
	}
	f.results = FilterProducts(products, SearchCriteria{
		Category:    f.answers.Category,
		Subcategory: f.answers.Subcategory,
		Budget:      budget,
	})
	f.step = StepResults

	outcome := "No exact matches with that budget/preferences. You can still view suggestions."
	if n := len(f.results); n > 0 {
		outcome = fmt.Sprintf("Found %d matching products.", n)
	}

	return []Message{
		userSays(FormatRupees(budget)),
		botSays("All set! Here's your plan:\n" + f.answers.Summary),
		botSays(outcome),
	}
}

func (f *ProductSearch) categories() []string {
	if f.catalog != nil {
		if cats := f.catalog.Categories(); len(cats) > 0 {
			return cats
		}
	}
	return DefaultCategories
}

func (f *ProductSearch) subcategories() []string {
	if f.catalog == nil {
		return nil
	}
	return f.catalog.Subcategories(f.answers.Category)
}

func summarize(a SearchAnswers) string {
	var parts []string
	if a.Category != "" {
		parts = append(parts, "Category: "+a.Category)
	}
	if a.Subcategory != "" {
		parts = append(parts, "Sub-category: "+a.Subcategory)
	}
	if a.Budget > 0 {
		parts = append(parts, "Budget: "+FormatRupees(a.Budget))
	}
	return strings.Join(parts, " • ")
}
