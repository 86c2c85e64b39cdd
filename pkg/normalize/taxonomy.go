// Package normalize provides the canonicalization functions and the static
// category taxonomy used throughout query processing. All functions are
// pure; a missing result is reported with an explicit ok=false, never an
// empty string.
package normalize

import "strings"

// RootGeneral is the reserved root category used when classification
// confidence is too low to commit to anything specific.
const RootGeneral = "general"

// Category is one node of the category taxonomy
type Category struct {
	ID            string
	DisplayName   string
	Synonyms      []string
	RegionalTerms []string
	Subcategories []string
	ParentID      string
}

// Taxonomy is the static category tree with derived lookup indices
type Taxonomy struct {
	categories map[string]*Category
	roots      []string

	synonymIndex  map[string]string // synonym -> category id
	regionalIndex map[string]string // regional term -> category id
	childIndex    map[string]string // child id -> parent id
	// modelTerms maps labels the classifier model is known to emit onto
	// canonical ids
	modelTerms map[string]string
}

// NewTaxonomy builds a taxonomy and its derived indices from category nodes
func NewTaxonomy(categories []*Category, modelTerms map[string]string) *Taxonomy {
	t := &Taxonomy{
		categories:    make(map[string]*Category, len(categories)),
		synonymIndex:  make(map[string]string),
		regionalIndex: make(map[string]string),
		childIndex:    make(map[string]string),
		modelTerms:    make(map[string]string),
	}
	for _, c := range categories {
		t.categories[c.ID] = c
		if c.ParentID == "" {
			t.roots = append(t.roots, c.ID)
		}
		for _, s := range c.Synonyms {
			t.synonymIndex[strings.ToLower(s)] = c.ID
		}
		for _, r := range c.RegionalTerms {
			t.regionalIndex[strings.ToLower(r)] = c.ID
		}
		for _, sub := range c.Subcategories {
			t.childIndex[sub] = c.ID
		}
	}
	for term, id := range modelTerms {
		t.modelTerms[strings.ToLower(term)] = id
	}
	return t
}

// Get returns the category node for an id
func (t *Taxonomy) Get(id string) (*Category, bool) {
	c, ok := t.categories[id]
	return c, ok
}

// RootIDs returns the ids of all root categories
func (t *Taxonomy) RootIDs() []string {
	out := make([]string, len(t.roots))
	copy(out, t.roots)
	return out
}

// Root returns the root ancestor of a category id. A root returns itself.
func (t *Taxonomy) Root(id string) string {
	seen := map[string]bool{}
	for {
		parent, ok := t.childIndex[id]
		if !ok || seen[id] {
			return id
		}
		seen[id] = true
		id = parent
	}
}

// Parent returns the parent id of a category, if any
func (t *Taxonomy) Parent(id string) (string, bool) {
	p, ok := t.childIndex[id]
	return p, ok
}

// IsRoot reports whether id is a root category
func (t *Taxonomy) IsRoot(id string) bool {
	_, hasParent := t.childIndex[id]
	_, exists := t.categories[id]
	return exists && !hasParent
}

// DefaultTaxonomy returns the built-in business category tree
func DefaultTaxonomy() *Taxonomy {
	categories := []*Category{
		{
			ID:            "food",
			DisplayName:   "Food & Dining",
			Synonyms:      []string{"restaurant", "restaurants", "dining", "eatery", "eateries", "food", "meal", "meals", "cuisine", "hungry", "eat", "lunch", "dinner", "breakfast"},
			RegionalTerms: []string{"dhaba", "bhojanalaya", "mess", "tiffin"},
			Subcategories: []string{"cafe", "bakery", "fast_food", "fine_dining", "street_food"},
		},
		{ID: "cafe", DisplayName: "Cafes", ParentID: "food",
			Synonyms:      []string{"coffee", "coffee shop", "coffee shops", "espresso", "tea house", "cafes"},
			RegionalTerms: []string{"chai", "chaiwala", "tapri"}},
		{ID: "bakery", DisplayName: "Bakeries", ParentID: "food",
			Synonyms: []string{"bakeries", "patisserie", "cake shop", "cakes", "pastry", "pastries"}},
		{ID: "fast_food", DisplayName: "Fast Food", ParentID: "food",
			Synonyms: []string{"takeaway", "takeout", "quick bites", "burgers", "pizza"}},
		{ID: "fine_dining", DisplayName: "Fine Dining", ParentID: "food",
			Synonyms: []string{"fine dining", "upscale restaurant"}},
		{ID: "street_food", DisplayName: "Street Food", ParentID: "food",
			Synonyms:      []string{"food stall", "food stalls", "hawker"},
			RegionalTerms: []string{"chaat", "thela", "redi"}},
		{
			ID:            "fitness",
			DisplayName:   "Fitness & Wellness",
			Synonyms:      []string{"gym", "gyms", "workout", "work out", "exercise", "training", "fitness center", "fitness centre"},
			RegionalTerms: []string{"akhara", "vyayamshala"},
			Subcategories: []string{"yoga", "sports"},
		},
		{ID: "yoga", DisplayName: "Yoga Studios", ParentID: "fitness",
			Synonyms: []string{"yoga studio", "yoga studios", "meditation", "pilates"}},
		{ID: "sports", DisplayName: "Sports Facilities", ParentID: "fitness",
			Synonyms: []string{"swimming pool", "badminton court", "cricket ground", "turf"}},
		{
			ID:            "shopping",
			DisplayName:   "Shopping & Retail",
			Synonyms:      []string{"shop", "shops", "store", "stores", "mall", "malls", "market", "markets", "retail", "boutique", "boutiques"},
			RegionalTerms: []string{"kirana", "bazaar", "mandi", "haat"},
			Subcategories: []string{"grocery", "electronics", "clothing"},
		},
		{ID: "grocery", DisplayName: "Grocery Stores", ParentID: "shopping",
			Synonyms:      []string{"groceries", "supermarket", "supermarkets", "provision store"},
			RegionalTerms: []string{"kirana store"}},
		{ID: "electronics", DisplayName: "Electronics", ParentID: "shopping",
			Synonyms: []string{"mobile shop", "computer store", "gadgets"}},
		{ID: "clothing", DisplayName: "Clothing & Apparel", ParentID: "shopping",
			Synonyms: []string{"clothes", "apparel", "fashion", "garments", "tailor", "tailors"}},
		{
			ID:            "health",
			DisplayName:   "Health & Medical",
			Synonyms:      []string{"doctor", "doctors", "hospital", "hospitals", "clinic", "clinics", "pharmacy", "pharmacies", "medical", "dentist", "dentists"},
			RegionalTerms: []string{"dawakhana", "medical store"},
		},
		{
			ID:            "beauty",
			DisplayName:   "Beauty & Personal Care",
			Synonyms:      []string{"salon", "salons", "spa", "spas", "barber", "barbers", "haircut", "parlour", "parlor", "grooming"},
			RegionalTerms: []string{"beauty parlour"},
		},
		{
			ID:            "services",
			DisplayName:   "Professional Services",
			Synonyms:      []string{"plumber", "plumbers", "electrician", "electricians", "lawyer", "lawyers", "accountant", "accountants", "repair", "repairs", "laundry"},
			RegionalTerms: []string{"dhobi", "istri"},
		},
		{
			ID:            "education",
			DisplayName:   "Education & Training",
			Synonyms:      []string{"school", "schools", "college", "colleges", "tuition", "coaching", "classes", "institute", "institutes", "library", "libraries"},
			RegionalTerms: []string{"coaching centre", "vidyalaya"},
		},
		{
			ID:            "entertainment",
			DisplayName:   "Entertainment & Leisure",
			Synonyms:      []string{"cinema", "cinemas", "movie", "movies", "theatre", "theater", "arcade", "bowling", "club", "clubs", "pub", "pubs", "bar", "bars"},
			RegionalTerms: []string{"talkies"},
		},
		{
			ID:            "automotive",
			DisplayName:   "Automotive",
			Synonyms:      []string{"garage", "garages", "mechanic", "mechanics", "car wash", "car repair", "bike repair", "petrol pump", "fuel station"},
			RegionalTerms: []string{"puncture shop"},
		},
		{
			ID:          RootGeneral,
			DisplayName: "General",
		},
	}

	// Labels the classifier model emits that do not match an id or synonym
	modelTerms := map[string]string{
		"restaurants & food": "food",
		"food and dining":    "food",
		"cafe & coffee":      "cafe",
		"health & wellness":  "health",
		"gyms & fitness":     "fitness",
		"retail":             "shopping",
		"nightlife":          "entertainment",
		"auto":               "automotive",
		"misc":               RootGeneral,
		"other":              RootGeneral,
	}

	return NewTaxonomy(categories, modelTerms)
}
