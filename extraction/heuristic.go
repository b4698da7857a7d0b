package extraction

import (
	"regexp"
	"strings"
	"time"

	"expensebot/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	amountPattern   = regexp.MustCompile(`(\d+[.,]\d+|\d+)`)
	currencyPattern = regexp.MustCompile(`(?i)(?:^|[^\p{L}])(mdl|lei|ron|eur|euro|usd|gbp)\b`)
	punctPattern    = regexp.MustCompile(`[,:;#.!?()"]+`)
	digitsPattern   = regexp.MustCompile(`\d+`)
	spacePattern    = regexp.MustCompile(`\s+`)

	// 按顺序尝试，捕获触发词之后的片段
	vendorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(?:cump[ăa]rat|luat|pl[ăa]tit|achitat|cheltuit)\s+(?:(?:de la|pe|la|pentru)\s+)?([^0-9\n]+)`),
		regexp.MustCompile(`(?i)\bfost\s+la\s+([^0-9\n]+)`),
		regexp.MustCompile(`(?i)\bde\s+la\s+([^0-9\n]+)`),
		regexp.MustCompile(`(?i)\b(?:la|pentru|pe)\s+([^0-9\n]+)`),
	}

	titleCaser = cases.Title(language.Romanian, cases.NoLower)
)

// 不可作为商家的动词、介词、冠词和代词
var stopWords = map[string]bool{
	"am": true, "ai": true, "a": true, "au": true, "eu": true, "si": true, "și": true, "și-am": true,
	"in": true, "în": true, "pe": true, "la": true, "de": true, "pentru": true, "cu": true, "din": true, "dela": true,
	"o": true, "un": true, "niste": true, "niște": true, "ceva": true,
	"cumparat": true, "cumpărat": true, "luat": true, "platit": true, "plătit": true, "achitat": true,
	"cheltuit": true, "fost": true, "dat": true, "costat": true, "cost": true, "costă": true,
}

// 尾部的时间词
var temporalWords = map[string]bool{
	"ieri": true, "azi": true, "astazi": true, "astăzi": true, "alaltaieri": true, "alaltăieri": true,
	"dimineata": true, "dimineață": true, "seara": true, "aseara": true, "aseară": true,
	"acum": true, "total": true, "lei": true,
}

// Heuristic 离线规则解析，结果只取决于输入文本与当天日期
type Heuristic struct {
	homeCurrency string
	now          func() time.Time
}

// NewHeuristic 创建规则解析器
func NewHeuristic(homeCurrency string) *Heuristic {
	if homeCurrency == "" {
		homeCurrency = "MDL"
	}
	return &Heuristic{homeCurrency: strings.ToUpper(homeCurrency), now: time.Now}
}

// Parse 解析自由文本
func (h *Heuristic) Parse(text string) models.CandidateExpense {
	normalized := strings.TrimSpace(spacePattern.ReplaceAllString(text, " "))

	out := models.CandidateExpense{
		Currency:     h.detectCurrency(normalized),
		PurchaseDate: h.now().Format(models.DateLayout),
		Notes:        strings.TrimSpace(text),
	}

	amount, amountAt := detectAmount(normalized)
	out.Amount = amount

	vendor := detectVendor(normalized, amountAt)
	if vendor == "" {
		vendor = models.DefaultVendor
	}
	out.Vendor = vendor

	if amount != nil {
		itemName := vendor
		if vendor == models.DefaultVendor {
			itemName = "Cheltuială"
		}
		rounded := amount.Round(2)
		out.Items = []models.LineItem{{
			Name:      itemName,
			Quantity:  decimal.NewFromInt(1),
			UnitPrice: rounded,
			Total:     rounded,
		}}
	}
	return out
}

func detectAmount(text string) (*decimal.Decimal, int) {
	loc := amountPattern.FindStringIndex(text)
	if loc == nil {
		return nil, -1
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(text[loc[0]:loc[1]], ",", "."))
	if err != nil {
		return nil, -1
	}
	return &d, loc[0]
}

func (h *Heuristic) detectCurrency(text string) string {
	m := currencyPattern.FindStringSubmatch(text)
	if m == nil {
		return h.homeCurrency
	}
	switch code := strings.ToLower(m[1]); code {
	case "lei":
		return h.homeCurrency
	case "euro":
		return "EUR"
	default:
		return strings.ToUpper(code)
	}
}

func detectVendor(text string, amountAt int) string {
	for _, p := range vendorPatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := formatVendor(m[1]); v != "" {
			return v
		}
	}
	if amountAt > 0 {
		tokens := strings.Fields(text[:amountAt])
		if len(tokens) > 3 {
			tokens = tokens[len(tokens)-3:]
		}
		if v := formatVendor(strings.Join(tokens, " ")); v != "" {
			return v
		}
	}
	return ""
}

func formatVendor(raw string) string {
	s := punctPattern.ReplaceAllString(raw, " ")
	s = currencyPattern.ReplaceAllString(s, " ")
	s = digitsPattern.ReplaceAllString(s, " ")
	tokens := strings.Fields(s)

	for len(tokens) > 0 && stopWords[strings.ToLower(tokens[0])] {
		tokens = tokens[1:]
	}
	for len(tokens) > 0 {
		last := strings.ToLower(tokens[len(tokens)-1])
		if !stopWords[last] && !temporalWords[last] {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return ""
	}
	if len(tokens) > 3 {
		tokens = tokens[:3]
		// 截断后可能以介词结尾
		for len(tokens) > 1 && stopWords[strings.ToLower(tokens[len(tokens)-1])] {
			tokens = tokens[:len(tokens)-1]
		}
	}
	return titleCaser.String(strings.Join(tokens, " "))
}

// IsStopWord 判断文本是否只是动词或介词
func IsStopWord(s string) bool {
	return stopWords[strings.ToLower(strings.TrimSpace(s))]
}
