package extraction

import (
	"hash/fnv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FallbackCategoryNames 没有更好匹配时使用的兜底类别
var FallbackCategoryNames = []string{"Alte cheltuieli", "Other"}

var folder = cases.Fold()

// Fold 去除变音符并折叠大小写，用于不敏感比较
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.TrimSpace(folder.String(out))
}

// Suggestion 类别建议
type Suggestion struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

type keywordRule struct {
	keywords   []string
	suggestion Suggestion
}

// 关键字按词首匹配（已折叠）
var keywordRules = []keywordRule{
	{[]string{"food", "mancare", "grocer", "market", "supermarket", "linella", "cora", "carrefour", "kaufland", "fidesco", "green hills", "alimente", "paine", "lapte", "fructe", "legume", "carne"},
		Suggestion{"Groceries", "#34d399", "🛒"}},
	{[]string{"transport", "uber", "bolt", "yandex", "taxi", "fuel", "benzina", "motorina", "combustibil", "petrol", "petrom", "lukoil", "rompetrol", "autobuz", "troleibuz", "parcare", "flight", "avion"},
		Suggestion{"Transport", "#60a5fa", "🚗"}},
	{[]string{"restaurant", "cafe", "cafea", "cafenea", "coffee", "starbucks", "meal", "pranz", "pizza", "burger", "mcdonald", "kfc", "sushi"},
		Suggestion{"Restaurant", "#f472b6", "🍽️"}},
	{[]string{"health", "clinic", "medical", "medicament", "farmacie", "vitamine", "gym", "fitness", "doctor", "stomatolog", "analize"},
		Suggestion{"Health", "#f87171", "💊"}},
	{[]string{"pet", "animal", "vet", "pisica", "caine"},
		Suggestion{"Pets", "#22d3ee", "🐾"}},
	{[]string{"soft", "subscription", "saas", "licence", "licenta", "abonament", "netflix", "spotify"},
		Suggestion{"Software", "#a855f7", "💻"}},
	{[]string{"chirie", "facturi", "factura", "detergent", "menaj", "gaz", "energie", "internet", "mobila", "electrocasnice"},
		Suggestion{"Household", "#facc15", "🏠"}},
	{[]string{"cinema", "film", "concert", "teatru", "joc", "bilet"},
		Suggestion{"Entertainment", "#c084fc", "🎉"}},
}

var (
	colorSuggestions = []string{"#34d399", "#22d3ee", "#f97316", "#f472b6", "#a855f7", "#facc15", "#38bdf8", "#94a3b8", "#f43f5e", "#0ea5e9"}
	iconSuggestions  = []string{"💼", "🍔", "🏠", "🎉", "🛒", "🚗", "💡", "💊", "🎁", "✈️", "📚", "🐾", "🧖", "🎮", "📱", "🧾"}
)

func tokenize(folded string) string {
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return " " + strings.Join(fields, " ")
}

func matchKeyword(text string) (keywordRule, bool) {
	padded := tokenize(Fold(text))
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(padded, " "+kw) {
				return rule, true
			}
		}
	}
	return keywordRule{}, false
}

// MatchCategory 将识别出的类别名映射到现有类别
// 依次尝试：完全匹配、包含匹配、关键字、兜底类别；都不命中返回空串
func MatchCategory(candidate, context string, available []string) string {
	if len(available) == 0 {
		return ""
	}
	folded := make([]string, len(available))
	for i, name := range available {
		folded[i] = Fold(name)
	}

	want := Fold(candidate)
	if want != "" {
		for i, f := range folded {
			if f == want {
				return available[i]
			}
		}
		for i, f := range folded {
			if f != "" && (strings.Contains(want, f) || strings.Contains(f, want)) {
				return available[i]
			}
		}
	}

	if rule, ok := matchKeyword(candidate + " " + context); ok {
		target := Fold(rule.suggestion.Name)
		for i, f := range folded {
			if f == target {
				return available[i]
			}
		}
	}

	for _, fb := range FallbackCategoryNames {
		target := Fold(fb)
		for i, f := range folded {
			if f == target {
				return available[i]
			}
		}
	}
	return ""
}

// SuggestCategory 根据描述建议类别名称、颜色和图标
func SuggestCategory(description string) Suggestion {
	description = strings.TrimSpace(description)
	if rule, ok := matchKeyword(description); ok {
		return rule.suggestion
	}
	name := strings.Join(firstN(strings.Fields(description), 2), " ")
	if name == "" {
		name = "Categorie personalizată"
	}
	// 同一描述总是得到相同的颜色与图标
	h := fnv.New32a()
	_, _ = h.Write([]byte(Fold(description)))
	sum := h.Sum32()
	return Suggestion{
		Name:  name,
		Color: colorSuggestions[sum%uint32(len(colorSuggestions))],
		Icon:  iconSuggestions[sum%uint32(len(iconSuggestions))],
	}
}

func firstN(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
