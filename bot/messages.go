package bot

import (
	"fmt"
	"html"
	"strings"

	"expensebot/models"
	"expensebot/service"
	"expensebot/stats"

	"github.com/shopspring/decimal"
)

// 固定回复
const (
	msgProcessingText  = "🤖 Procesez cheltuiala..."
	msgProcessingVoice = "🎤 Ascult mesajul vocal..."
	msgNoAmount        = "❌ Nu am putut detecta suma.\n\nScrie, de exemplu: <i>Cafea 45 MDL</i>"
	msgExpired         = "❌ Confirmarea a expirat. Te rog adaugă din nou cheltuiala."
	msgRejected        = "❌ <b>Cheltuială anulată</b>\n\nNu a fost salvată în baza de date."
	msgForbidden       = "⛔ Acest bot este privat."
	msgUnknownCommand  = "🤷 Comandă necunoscută. Folosește /help."
	msgUnsupported     = "✍️ Trimite un mesaj text sau vocal cu cheltuiala."
	msgFailed          = "❌ <b>Eroare la procesare</b>\n\nNu am putut procesa cheltuiala. Te rog încearcă din nou."
	msgVoiceFailed     = "❌ <b>Eroare la procesarea mesajului vocal</b>\n\nNu am putut înțelege mesajul. Încearcă:\n• Vorbește mai clar\n• Menționează suma și moneda\n• Evită zgomotul de fundal\n\nSau scrie direct în chat! ✍️"
	msgAddCategoryHelp = "❌ <b>Nume categorie lipsă!</b>\n\n<b>Folosește:</b> /add_category Nume Categorie\n\n<b>Exemple:</b>\n• /add_category Sănătate\n• /add_category Educație"
	msgCategoryExists  = "⚠️ Categoria există deja."
	msgNoCategories    = "📂 <b>Nu ai categorii create încă</b>\n\n💡 Folosește: /add_category Nume Categorie"
	msgNoExpenses      = "📊 <b>Nu ai cheltuieli înregistrate încă</b>\n\nTrimite-mi:\n🎤 Un mesaj vocal\n✍️ Sau scrie direct suma"

	toastApproved = "✅ Salvat"
	toastRejected = "Anulat"
	toastExpired  = "Confirmarea nu mai este disponibilă"
	toastInvalid  = "Acțiune necunoscută"
)

const commandList = `<b>💡 Comenzi disponibile:</b>
/start - Mesaj de bun venit
/categories - Vezi categoriile tale
/expenses - Vezi ultimele cheltuieli
/stats - Statistici cheltuieli
/add_category - Adaugă categorie
/help - Ajutor`

const helpText = `<b>📱 Expense Bot - Ghid de utilizare</b>

<b>🎯 Cum să adaugi cheltuieli:</b>

1️⃣ <b>Mesaj vocal</b>
   Spune: "Am cheltuit X lei pe Y"

2️⃣ <b>Text simplu</b>
   Scrie: "Cafea 45 MDL"

După fiecare mesaj îți cer confirmarea cu ✅ DA / ❌ NU.

<b>💡 Exemple:</b>
• "Taxi la aeroport 120 lei"
• "Am plătit 480 MDL la Linella ieri"
• "Restaurant 250 MDL cu prietenii"

` + commandList

func welcomeText(categories []models.Category) string {
	var b strings.Builder
	b.WriteString("👋 <b>Bine ai venit!</b>\n\nSunt asistentul tău pentru cheltuieli. Trimite-mi un mesaj text sau vocal și îl transform într-o cheltuială.\n\n")
	if len(categories) > 0 {
		b.WriteString("<b>📊 Categorii:</b>\n")
		for _, c := range categories {
			fmt.Fprintf(&b, "%s %s\n", c.Icon, html.EscapeString(c.Name))
		}
		b.WriteString("\n")
	}
	b.WriteString(commandList)
	return b.String()
}

func displayDate(c models.CandidateExpense) string {
	if c.PurchaseDate == "" {
		return "-"
	}
	t, err := stats.ParseDay(c.PurchaseDate)
	if err != nil {
		return html.EscapeString(c.PurchaseDate)
	}
	return t.Format("02.01.2006")
}

func amountText(c models.CandidateExpense) string {
	if c.Amount == nil {
		return "-"
	}
	return c.Amount.StringFixed(2) + " " + html.EscapeString(c.Currency)
}

// confirmationText 待确认提示
func confirmationText(c models.CandidateExpense, transcript string) string {
	var b strings.Builder
	if transcript != "" {
		fmt.Fprintf(&b, "🎤 <i>%s</i>\n\n", html.EscapeString(transcript))
	}
	b.WriteString("❓ <b>Confirmi cheltuiala?</b>\n\n")
	fmt.Fprintf(&b, "💰 <b>Sumă:</b> %s\n", amountText(c))
	if c.Vendor != "" {
		fmt.Fprintf(&b, "🏪 <b>Vendor:</b> %s\n", html.EscapeString(c.Vendor))
	}
	if c.Category != "" {
		fmt.Fprintf(&b, "📂 <b>Categorie:</b> %s\n", html.EscapeString(c.Category))
	}
	fmt.Fprintf(&b, "📅 <b>Data:</b> %s", displayDate(c))
	if len(c.Items) > 1 {
		b.WriteString("\n\n<b>📝 Produse:</b>")
		for _, it := range c.Items {
			fmt.Fprintf(&b, "\n• %s: %s", html.EscapeString(it.Name), it.Total.StringFixed(2))
		}
	}
	return b.String()
}

func confirmationKeyboard(id string) *service.InlineKeyboardMarkup {
	return &service.InlineKeyboardMarkup{
		InlineKeyboard: [][]service.InlineKeyboardButton{{
			{Text: "✅ DA", CallbackData: EncodeCallback(ActionApprove, id)},
			{Text: "❌ NU", CallbackData: EncodeCallback(ActionReject, id)},
		}},
	}
}

// savedText 确认保存后的摘要
func savedText(e *models.Expense, categoryName string) string {
	if categoryName == "" {
		categoryName = "N/A"
	}
	return fmt.Sprintf("✅ <b>Cheltuială confirmată și salvată!</b>\n\n💰 <b>Sumă:</b> %s %s\n🏪 <b>Vendor:</b> %s\n📂 <b>Categorie:</b> %s\n📅 <b>Data:</b> %s",
		e.Amount.StringFixed(2), html.EscapeString(e.Currency),
		html.EscapeString(e.Vendor),
		html.EscapeString(categoryName),
		e.PurchaseDate.Format("02.01.2006"))
}

func categoriesText(list []models.Category) string {
	if len(list) == 0 {
		return msgNoCategories
	}
	var b strings.Builder
	b.WriteString("<b>📂 Categoriile tale:</b>\n\n")
	for _, c := range list {
		badge := ""
		if c.IsDefault {
			badge = " 🔒"
		}
		fmt.Fprintf(&b, "%s <b>%s</b>%s\n", c.Icon, html.EscapeString(c.Name), badge)
	}
	fmt.Fprintf(&b, "\n<i>Total: %d categorii</i>\n\n💡 /add_category Nume - Adaugă categorie nouă", len(list))
	return b.String()
}

func sourceIcon(source string) string {
	switch source {
	case models.SourceVoice:
		return "🎤"
	case models.SourceManual:
		return "✍️"
	default:
		return "📝"
	}
}

func expensesText(list []models.Expense, homeCurrency string) string {
	if len(list) == 0 {
		return msgNoExpenses
	}
	var b strings.Builder
	fmt.Fprintf(&b, "<b>📊 Ultimele %d cheltuieli:</b>\n\n", len(list))
	total := decimal.Zero
	for _, e := range list {
		fmt.Fprintf(&b, "%s <b>%s %s</b> - %s\n   📅 %s\n\n",
			sourceIcon(e.Source),
			e.Amount.StringFixed(2), html.EscapeString(e.Currency),
			html.EscapeString(e.Vendor),
			e.PurchaseDate.Format("02.01.2006"))
		if strings.EqualFold(e.Currency, homeCurrency) {
			total = total.Add(e.Amount)
		}
	}
	if total.IsPositive() {
		fmt.Fprintf(&b, "<b>💰 Total (%s): %s</b>", html.EscapeString(homeCurrency), total.StringFixed(2))
	}
	return b.String()
}

func statsText(s stats.SummaryReport, c stats.CategoryReport, currency string) string {
	var b strings.Builder
	b.WriteString("📊 <b>Statistici</b>\n\n")
	fmt.Fprintf(&b, "💰 <b>Luna curentă:</b> %s %s (%d chelt.)\n", s.CurrentMonth.Total.StringFixed(2), currency, s.CurrentMonth.Count)
	fmt.Fprintf(&b, "   Medie: %s %s\n", s.CurrentMonth.Average.StringFixed(2), currency)
	fmt.Fprintf(&b, "📅 <b>Săptămâna:</b> %s %s (%d chelt.)\n", s.CurrentWeek.Total.StringFixed(2), currency, s.CurrentWeek.Count)
	fmt.Fprintf(&b, "☀️ <b>Azi:</b> %s %s (%d chelt.)\n", s.Today.Total.StringFixed(2), currency, s.Today.Count)

	cmp := s.ComparisonPreviousMonth
	arrow := "➡️"
	switch cmp.Trend {
	case stats.TrendUp:
		arrow = "📈"
	case stats.TrendDown:
		arrow = "📉"
	}
	fmt.Fprintf(&b, "%s <b>Față de luna trecută:</b> %+.1f%%\n", arrow, cmp.ChangePercentage)

	if len(c.Categories) > 0 {
		b.WriteString("\n📂 <b>PE CATEGORII:</b>\n")
		for i, ct := range c.Categories {
			if i == 5 {
				break
			}
			fmt.Fprintf(&b, "   • %s %s: %s %s (%.0f%%)\n", ct.Icon, html.EscapeString(ct.Name), ct.Total.StringFixed(0), currency, ct.Percentage)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func categoryAddedText(c *models.Category) string {
	return fmt.Sprintf("✅ <b>Categorie adăugată cu succes!</b>\n\n%s <b>%s</b>\n\nAcum poți folosi această categorie pentru cheltuieli!", c.Icon, html.EscapeString(c.Name))
}
