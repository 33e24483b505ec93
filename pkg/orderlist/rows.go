package orderlist

import (
	"fmt"

	"github.com/uhyunpark/orderwatch/pkg/annotate"
	"github.com/uhyunpark/orderwatch/pkg/format"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

const (
	TypeLimit   = "Limit"
	TypeTrigger = "Trigger"

	ActionEdit   = "edit"
	ActionCancel = "cancel"

	EmptyMessage = "No open orders"
)

// Row is one rendered line of the order list
type Row struct {
	ID        string   `json:"id"`
	Kind      string   `json:"kind"`
	Index     uint64   `json:"index"`
	Type      string   `json:"type"`
	Direction string   `json:"direction,omitempty"`
	Title     string   `json:"title"`
	Price     string   `json:"price"`
	MarkPrice string   `json:"markPrice"`
	Tooltip   string   `json:"tooltip,omitempty"`
	Warning   string   `json:"warning,omitempty"`
	Error     string   `json:"error,omitempty"`
	Actions   []string `json:"actions,omitempty"`
}

// Rows renders every current order. An order that cannot be annotated becomes
// an error row; the other rows are unaffected.
func (l *List) Rows() []Row {
	results := l.annotate()
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		rows = append(rows, l.row(r))
	}
	return rows
}

// Row renders a single order of the current set and returns it with the order.
// Both come from the same set.
func (l *List) Row(id orders.ID) (Row, orders.Order, bool) {
	set, snap := l.current()
	o, ok := set.Get(id)
	if !ok {
		return Row{}, nil, false
	}
	ann, err := l.annotator.Annotate(o, snap.Tokens, snap.Positions)
	return l.row(annotate.Result{Order: o, Annotation: ann, Err: err}), o, true
}

func (l *List) row(r annotate.Result) Row {
	row := l.render(r)
	if !l.cfg.ReadOnly && r.Err == nil {
		row.Actions = []string{ActionEdit, ActionCancel}
	}
	return row
}

func (l *List) render(r annotate.Result) Row {
	id := r.Order.OrderID()
	row := Row{
		ID:    id.String(),
		Kind:  id.Kind.String(),
		Index: id.Index,
		Type:  typeLabel(id.Kind),
	}
	if r.Err != nil {
		row.Title = fmt.Sprintf("%s order %d", id.Kind, id.Index)
		row.Price = format.Placeholder
		row.MarkPrice = format.Placeholder
		row.Error = r.Err.Error()
		return row
	}

	ann := r.Annotation
	row.Direction = ann.Direction
	row.Warning = string(ann.Warning)

	switch o := r.Order.(type) {
	case *orders.SwapOrder:
		from, to := ann.FromToken, ann.ToToken
		minOut := format.TokenAmount(o.MinOut, to)
		row.Title = fmt.Sprintf("Swap %s %s for %s %s", format.TokenAmount(o.AmountIn, from), from.Symbol, minOut, to.Symbol)
		row.Price = format.ExchangeRate(o.TriggerRatio, from, to)
		row.MarkPrice = format.ExchangeRate(ann.MarkExchangeRate, from, to)
		row.Tooltip = fmt.Sprintf("You will receive at least %s %s if this order is executed. "+
			"The execution price may vary depending on swap fees at the time the order is executed.", minOut, to.Symbol)
	case *orders.IncreaseOrder:
		row.Title = fmt.Sprintf("Increase %s %s by $%s", ann.IndexToken.DisplaySymbol(), ann.Direction, format.USD(o.SizeDelta))
		row.Price = fmt.Sprintf("%s %s", ann.TriggerPrefix, format.USD(o.TriggerPrice))
		row.MarkPrice = format.USD(ann.MarkPrice)
	case *orders.DecreaseOrder:
		row.Title = fmt.Sprintf("Decrease %s %s by $%s", ann.IndexToken.DisplaySymbol(), ann.Direction, format.USD(o.SizeDelta))
		row.Price = fmt.Sprintf("%s %s", ann.TriggerPrefix, format.USD(o.TriggerPrice))
		row.MarkPrice = format.USD(ann.MarkPrice)
	}
	return row
}

func typeLabel(kind orders.Kind) string {
	if kind == orders.KindDecrease {
		return TypeTrigger
	}
	return TypeLimit
}
