package escpos

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Riboost-Studio/cafe-ticket-printer/internal/model"
	"github.com/shopspring/decimal"
)

// DefaultWidth is the character width of an 80mm roll in normal text.
const DefaultWidth = 32

var DefaultShop = model.ShopInfo{
	Name:   "Le 1er Boulevard",
	Branch: "Gueliz",
}

// Layout assembles complete receipts. It holds only the letterhead and paper
// width, so the same input always yields the same bytes.
type Layout struct {
	Shop  model.ShopInfo
	Width int
}

func NewLayout(shop model.ShopInfo) Layout {
	if shop.Name == "" {
		shop = DefaultShop
	}
	return Layout{Shop: shop, Width: DefaultWidth}
}

func (l Layout) width() int {
	if l.Width <= 0 {
		return DefaultWidth
	}
	return l.Width
}

// ================= INVOICE =================

func (l Layout) Invoice(order model.Order) (Document, error) {
	b := NewBuilder().Align(AlignCenter)
	l.letterhead(b)

	b.Style(StyleDoubleHeight).Bold(true).Text("FACTURE").Style(StyleNormal).Bold(false).NewLine()
	b.Text("N° " + shortID(order.ID)).Lines(2)

	b.Line("Date: " + FormatDate(order.Date))
	b.Text("Agent: " + order.AgentName).Lines(2)
	if order.HasTable() {
		b.Line(fmt.Sprintf("Table: %d", order.TableNumber)).NewLine()
	}

	b.Rule('=', l.width()).NewLine()
	b.Bold(true).Text("ARTICLES").Bold(false).NewLine()
	b.Rule('=', l.width()).NewLine()

	for i, item := range order.Items {
		b.Line(fmt.Sprintf("%d. %s", i+1, item.Name))
		b.Line(fmt.Sprintf("%d x %s", item.Quantity, FormatCurrency(item.UnitPrice)))
		b.Line("= " + FormatCurrency(item.LineTotal()))
		b.Rule('-', l.width()).NewLine()
	}

	l.total(b, order.Total, false)
	l.barcode(b, order.ID)

	b.Text("Merci de votre confiance !").Lines(2)
	b.Text("À bientôt chez " + l.Shop.Name + " !").Lines(6)
	return b.Cut(true).Build()
}

// ================= TABLE TICKETS =================

// TableTicket is the client copy on its own.
func (l Layout) TableTicket(order model.Order) (Document, error) {
	b := NewBuilder().Align(AlignCenter)

	b.Style(StyleLarge).Dark(strings.ToUpper(l.Shop.Name)).NewLine()
	b.Style(StyleNormal)
	if l.Shop.Branch != "" {
		b.MediumDark(strings.ToUpper(l.Shop.Branch))
	}
	b.Lines(2)

	l.tableLine(b, order)
	b.MediumDark("Date: " + FormatDate(order.Date)).NewLine()
	b.MediumDark("Serveur: " + order.AgentName).Lines(2)

	b.Rule('=', l.width()).NewLine()
	b.Dark("TICKET CLIENT").NewLine()
	b.Rule('=', l.width()).NewLine()

	for i, item := range order.Items {
		b.MediumDark(fmt.Sprintf("%d. %s", i+1, item.Name)).NewLine()
		b.MediumDark(fmt.Sprintf("%d x %s = %s", item.Quantity, FormatCurrency(item.UnitPrice), FormatCurrency(item.LineTotal()))).NewLine()
		b.Rule('-', l.width()).NewLine()
	}

	l.total(b, order.Total, true)
	l.barcode(b, order.ID)

	b.MediumDark("Merci de votre visite !").Lines(6)
	return b.Cut(true).Build()
}

// AgentTicket is the staff copy: same order, item names and quantities only.
func (l Layout) AgentTicket(order model.Order) (Document, error) {
	b := NewBuilder().Align(AlignCenter)

	b.Lines(2)
	b.Rule('*', l.width()).NewLine()
	b.Dark("NOUVELLE FEUILLE - AGENT").NewLine()
	b.Rule('*', l.width()).Lines(2)

	b.Dark(strings.ToUpper(l.Shop.Name)).NewLine()
	b.Dark("COPIE AGENT").Lines(2)

	l.tableLine(b, order)
	b.MediumDark("Date: " + FormatDate(order.Date)).NewLine()
	b.MediumDark("Agent: " + order.AgentName).NewLine()
	b.MediumDark("Commande #: " + order.ID).Lines(2)

	b.Dark("ARTICLES:").NewLine()
	b.Rule('-', l.width()).NewLine()
	for i, item := range order.Items {
		b.MediumDark(fmt.Sprintf("%d. %s - Qte: %d", i+1, item.Name, item.Quantity)).NewLine()
	}
	b.NewLine()
	b.Rule('-', l.width()).NewLine()

	l.total(b, order.Total, true)
	if order.ID != "" {
		b.Barcode(order.ID)
	}
	b.Lines(6)
	return b.Cut(true).Build()
}

// TableTicketPair builds the client and agent copies of one order. They are
// printed as two separate jobs.
func (l Layout) TableTicketPair(order model.Order) (client, agent Document, err error) {
	if client, err = l.TableTicket(order); err != nil {
		return Document{}, Document{}, err
	}
	if agent, err = l.AgentTicket(order); err != nil {
		return Document{}, Document{}, err
	}
	return client, agent, nil
}

// ================= REPORT =================

type agentStats struct {
	name    string
	orders  int
	revenue decimal.Decimal
}

func (l Layout) Report(r model.Report) (Document, error) {
	items := 0
	var agents []*agentStats
	byName := map[string]*agentStats{}
	for _, o := range r.Orders {
		for _, it := range o.Items {
			items += it.Quantity
		}
		s, ok := byName[o.AgentName]
		if !ok {
			s = &agentStats{name: o.AgentName}
			byName[o.AgentName] = s
			agents = append(agents, s)
		}
		s.orders++
		s.revenue = s.revenue.Add(o.Total)
	}

	b := NewBuilder().Align(AlignCenter)
	l.letterhead(b)

	b.Style(StyleDoubleHeight).Bold(true)
	b.Line("RAPPORT DETAILLE").Text("DES REVENUS")
	b.Style(StyleNormal).Bold(false).Lines(2)

	b.Line("Généré le: " + FormatDay(r.GeneratedAt))
	b.Text("à " + r.GeneratedAt.Format("15:04:05")).Lines(2)

	b.Rule('=', l.width()).NewLine()
	b.Align(AlignLeft)
	b.Bold(true).Text("RÉSUMÉ GÉNÉRAL").Bold(false).NewLine()
	b.Rule('-', l.width()).NewLine()
	b.Line(PeriodLabel(r.Period))
	b.Line(fmt.Sprintf("Nombre de commandes: %d", len(r.Orders)))
	b.Line(fmt.Sprintf("Articles vendus: %d", items))
	b.Line(fmt.Sprintf("Nombre d'agents: %d", len(agents)))
	if len(r.Orders) > 0 {
		b.Line("Panier moyen: " + FormatCurrency(average(r.TotalRevenue, len(r.Orders))))
	}
	b.NewLine()

	b.Align(AlignCenter)
	l.total(b, r.TotalRevenue, false)

	if len(agents) > 0 {
		l.section(b, "PERFORMANCE PAR AGENT")
		b.Align(AlignLeft)
		for _, s := range agents {
			b.Bold(true).Text(s.name).Bold(false).NewLine()
			b.Line(fmt.Sprintf("  Commandes: %d", s.orders))
			b.Line("  Revenus: " + FormatCurrency(s.revenue))
			b.Line("  Moyenne: " + FormatCurrency(average(s.revenue, s.orders)))
			b.Rule('-', l.width()).NewLine()
		}
	}

	if len(r.Orders) > 0 {
		sorted := slices.Clone(r.Orders)
		slices.SortStableFunc(sorted, func(a, b model.Order) int { return a.Date.Compare(b.Date) })

		l.section(b, "DÉTAIL DES COMMANDES")
		b.Align(AlignLeft)
		for i, o := range sorted {
			b.Bold(true).Text(fmt.Sprintf("COMMANDE #%d", i+1)).Bold(false).NewLine()
			b.Line("Date: " + FormatDate(o.Date))
			b.Line("Agent: " + o.AgentName)
			b.Line("ID: " + o.ID)
			b.Rule('-', l.width()).NewLine()
			for _, it := range o.Items {
				b.Line(fmt.Sprintf("%dx %s", it.Quantity, it.Name))
				b.Line(fmt.Sprintf("   %s x %d = %s", FormatCurrency(it.UnitPrice), it.Quantity, FormatCurrency(it.LineTotal())))
			}
			b.Rule('-', l.width()).NewLine()
			b.Bold(true).Text("TOTAL: " + FormatCurrency(o.Total)).Bold(false).Lines(2)
		}
	}

	b.NewLine().Align(AlignCenter)
	b.Line("Rapport généré automatiquement")
	b.Text("par le système de gestion").Lines(6)
	return b.Cut(true).Build()
}

// ================= TEST PATTERN =================

// TestPattern prints every darkness level and a barcode so the operator can
// check the print head.
func (l Layout) TestPattern() (Document, error) {
	b := NewBuilder().Align(AlignCenter)
	b.Style(StyleLarge).Dark("TEST PATTERN").NewLine()
	b.NewLine()
	b.Style(StyleNormal).Line("Normal text darkness")
	b.MediumDark("Medium dark text").NewLine()
	b.Dark("Maximum dark text").NewLine()
	b.NewLine()
	b.Rule('=', l.width()).NewLine()
	b.Barcode("TEST123").NewLine()
	b.Lines(3)
	return b.Cut(true).Build()
}

// ================= SHARED BLOCKS =================

func (l Layout) letterhead(b *Builder) {
	b.Style(StyleLarge).Bold(true).Text(strings.ToUpper(l.Shop.Name)).NewLine()
	b.Style(StyleNormal).Bold(false)
	if l.Shop.Branch != "" {
		b.Line(strings.ToUpper(l.Shop.Branch))
	}
	for _, line := range l.Shop.Address {
		b.Line(line)
	}
	if l.Shop.Phone != "" {
		b.Line("Tel: " + l.Shop.Phone)
	}
	b.NewLine()
}

func (l Layout) section(b *Builder, title string) {
	b.Align(AlignCenter)
	b.Rule('=', l.width()).NewLine()
	b.Bold(true).Text(title).Bold(false).NewLine()
	b.Rule('=', l.width()).NewLine()
}

func (l Layout) tableLine(b *Builder, order model.Order) {
	if !order.HasTable() {
		return
	}
	b.Style(StyleDoubleHeight).Dark(fmt.Sprintf("TABLE %d", order.TableNumber)).Style(StyleNormal).NewLine()
}

func (l Layout) total(b *Builder, amount decimal.Decimal, dark bool) {
	b.Align(AlignCenter).Style(StyleDoubleHeight)
	if dark {
		b.Dark("TOTAL: " + FormatCurrency(amount))
	} else {
		b.Bold(true).Text("TOTAL: " + FormatCurrency(amount)).Bold(false)
	}
	b.Style(StyleNormal).Lines(2)
}

func (l Layout) barcode(b *Builder, id string) {
	if id == "" {
		return
	}
	b.Barcode(id).Lines(2)
}

func shortID(id string) string {
	r := []rune(id)
	if len(r) > 8 {
		return string(r[:8])
	}
	return id
}

func average(sum decimal.Decimal, n int) decimal.Decimal {
	if n == 0 {
		return decimal.Zero
	}
	return sum.Div(decimal.NewFromInt(int64(n)))
}
