package constants

import "strings"

// Category is a lab-test panel used to group extracted results.
type Category string

const (
	Hemograma   Category = "Hemograma"
	Bioquimica  Category = "Bioquímica"
	Hormonais   Category = "Hormonais"
	Lipidograma Category = "Lipidograma"
	Urinalise   Category = "Urinálise"
	Imunologia  Category = "Imunologia"
	Vitaminas   Category = "Vitaminas"
	Imagem      Category = "Imagem"
	Outros      Category = "Outros"
)

var allCategories = []Category{
	Hemograma,
	Bioquimica,
	Hormonais,
	Lipidograma,
	Urinalise,
	Imunologia,
	Vitaminas,
	Imagem,
	Outros,
}

func AsStringSlice() []string {
	result := make([]string, len(allCategories))
	for i, cat := range allCategories {
		result[i] = string(cat)
	}
	return result
}

// Canonicalize maps free-form panel labels onto the fixed vocabulary.
// The second return reports whether the input matched anything known.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Outros, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]Category{
		"hemogram":      Hemograma,
		"blood count":   Hemograma,
		"biochemistry":  Bioquimica,
		"bioquimica":    Bioquimica,
		"hormones":      Hormonais,
		"hormonal":      Hormonais,
		"lipid panel":   Lipidograma,
		"lipidos":       Lipidograma,
		"urinalysis":    Urinalise,
		"urinalise":     Urinalise,
		"urina":         Urinalise,
		"immunology":    Imunologia,
		"sorologia":     Imunologia,
		"vitamins":      Vitaminas,
		"imaging":       Imagem,
		"ultrassom":     Imagem,
		"radiografia":   Imagem,
		"miscellaneous": Outros,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return Outros, false
}
