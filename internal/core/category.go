package core

import "strings"

// AllCategories is the filter sentinel that disables category matching.
const AllCategories = "All"

var builtinCategories = []Category{
	{ID: "food-dining", Name: "Food & Dining", IsDefault: true},
	{ID: "transportation", Name: "Transportation", IsDefault: true},
	{ID: "entertainment", Name: "Entertainment", IsDefault: true},
	{ID: "shopping", Name: "Shopping", IsDefault: true},
	{ID: "bills-utilities", Name: "Bills & Utilities", IsDefault: true},
	{ID: "healthcare", Name: "Healthcare", IsDefault: true},
	{ID: "education", Name: "Education", IsDefault: true},
	{ID: "other", Name: "Other", IsDefault: true},
}

// BuiltinCategories returns a copy of the shared default categories.
func BuiltinCategories() []Category {
	out := make([]Category, len(builtinCategories))
	copy(out, builtinCategories)
	return out
}

// BuiltinByID looks up a default category by its id.
func BuiltinByID(id string) (Category, bool) {
	for _, c := range builtinCategories {
		if c.ID == id {
			return c, true
		}
	}
	return Category{}, false
}

// BuiltinByName looks up a default category by exact name.
func BuiltinByName(name string) (Category, bool) {
	for _, c := range builtinCategories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// NormalizeCategoryName trims the name and rejects blank input.
func NormalizeCategoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", Invalid("name", "category name is required")
	}
	return name, nil
}

// CategoryNames indexes category names by id.
func CategoryNames(cats []Category) map[string]string {
	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}
	return names
}
