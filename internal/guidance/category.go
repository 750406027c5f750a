// Package guidance selects the category-specific strategy block that shapes
// the 21-day plan prompt.
package guidance

import "strings"

// Category is the closed set of strategy families. CategoryOther is the
// default and a real member of the set.
type Category string

const (
	CategoryNicotine        Category = "nicotine"
	CategoryPornography     Category = "pornography"
	CategoryScreen          Category = "screen"
	CategorySubstance       Category = "substance"
	CategoryFood            Category = "food"
	CategorySpending        Category = "spending"
	CategoryProcrastination Category = "procrastination"
	CategoryOther           Category = "other"
)

// AllCategories lists every category in display order.
var AllCategories = []Category{
	CategoryNicotine,
	CategoryPornography,
	CategoryScreen,
	CategorySubstance,
	CategoryFood,
	CategorySpending,
	CategoryProcrastination,
	CategoryOther,
}

// aliases maps the labels the canonicalizer and quiz summarizer emit onto a
// strategy family.
var aliases = map[string]Category{
	"nicotine":          CategoryNicotine,
	"nicotine_smoking":  CategoryNicotine,
	"nicotine_vaping":   CategoryNicotine,
	"nicotine_oral":     CategoryNicotine,
	"smoking":           CategoryNicotine,
	"vaping":            CategoryNicotine,
	"pornography":       CategoryPornography,
	"porn":              CategoryPornography,
	"screen":            CategoryScreen,
	"screen_time":       CategoryScreen,
	"social_media":      CategoryScreen,
	"gaming":            CategoryScreen,
	"substance":         CategorySubstance,
	"alcohol":           CategorySubstance,
	"cannabis":          CategorySubstance,
	"food":              CategoryFood,
	"sugar":             CategoryFood,
	"food_overeating":   CategoryFood,
	"spending":          CategorySpending,
	"shopping_spending": CategorySpending,
	"gambling":          CategorySpending,
	"procrastination":   CategoryProcrastination,
	"other":             CategoryOther,
}

// Normalize maps a free-form category label onto a Category. Matching is
// case-insensitive and treats '-' and spaces as '_'. Unknown labels map to
// CategoryOther.
func Normalize(raw string) Category {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if c, ok := aliases[key]; ok {
		return c
	}
	return CategoryOther
}

// Valid reports whether c is a member of the closed set.
func (c Category) Valid() bool {
	_, ok := blocks[c]
	return ok
}
