package annotate

import (
	"github.com/uhyunpark/orderwatch/pkg/market"
	"github.com/uhyunpark/orderwatch/pkg/orders"
)

// Result is the outcome of annotating one order in a batch
type Result struct {
	Order      orders.Order
	Annotation Annotation
	Err        error
}

// AnnotateAll annotates every order independently. A failure is recorded on that order's
// Result only; the remaining orders are still annotated.
func (a *Annotator) AnnotateAll(list []orders.Order, tokens market.Tokens, positions market.Positions) []Result {
	results := make([]Result, len(list))
	for i, o := range list {
		ann, err := a.Annotate(o, tokens, positions)
		results[i] = Result{Order: o, Annotation: ann, Err: err}
	}
	return results
}

// Failed returns the results that carry an error
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
