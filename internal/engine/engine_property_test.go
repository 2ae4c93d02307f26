package engine_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/omarkets/exchange-engine/internal/engine"
	"github.com/omarkets/exchange-engine/internal/model"
)

// The conservation properties checked after every random command
// sequence: no balance or holding ever goes negative, yes and no token
// totals stay equal, every locked rupee backs exactly one resting Bid,
// and every locked token backs exactly one resting Exit.

func priceGrid(t *rapid.T, label string) model.Price {
	return model.Price(rapid.Int64Range(1, 20).Draw(t, label)) * model.PriceTick
}

func minorFromMajorString(t *rapid.T, s string) int64 {
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad snapshot price %q: %v", s, err)
	}
	return d.Mul(decimal.NewFromInt(model.MinorPerMajor)).IntPart()
}

func TestProperty_ConservationUnderRandomCommands(t *testing.T) {
	users := []string{"u1", "u2", "u3"}

	rapid.Check(t, func(t *rapid.T) {
		e := engine.New(nil, nil)
		e.CreateSymbol(sym)
		for _, u := range users {
			e.CreateAccount(u)
			e.TopUp(u, rapid.Int64Range(0, 200).Draw(t, "seed_"+u)*model.MinorPerMajor)
		}

		ops := rapid.IntRange(1, 50).Draw(t, "ops")
		for i := 0; i < ops; i++ {
			user := rapid.SampledFrom(users).Draw(t, "user")
			outcome := rapid.SampledFrom([]model.Outcome{model.OutcomeYes, model.OutcomeNo}).Draw(t, "outcome")
			qty := rapid.Int64Range(1, 20).Draw(t, "qty")

			switch rapid.IntRange(0, 4).Draw(t, "op") {
			case 0:
				e.TopUp(user, rapid.Int64Range(1, 100).Draw(t, "amount")*model.MinorPerMajor)
			case 1:
				e.Mint(user, sym, qty, priceGrid(t, "mintPrice"))
			case 2:
				e.Buy(user, sym, outcome, qty, priceGrid(t, "buyPrice"))
			case 3:
				e.Sell(user, sym, outcome, qty, priceGrid(t, "sellPrice"))
			case 4:
				e.Cancel(user, sym, outcome)
			}
			checkConservation(t, e)
		}
	})
}

func checkConservation(t *rapid.T, e *engine.Engine) {
	bals, ok := e.Balances().Data.(map[string]model.Money)
	if !ok {
		t.Fatalf("Balances data type")
	}
	positions, ok := e.Positions().Data.(map[string]map[string]model.SymbolPosition)
	if !ok {
		t.Fatalf("Positions data type")
	}
	snap, ok := e.OrderBookOf(sym).Data.(model.BookSnapshot)
	if !ok {
		t.Fatalf("OrderBookOf data type")
	}

	var totalMoneyLocked int64
	for user, m := range bals {
		if m.Balance < 0 || m.Locked < 0 {
			t.Fatalf("negative money for %s: %+v", user, m)
		}
		totalMoneyLocked += m.Locked
	}

	var totalYes, totalNo int64
	stockLocked := map[string]map[model.Outcome]int64{}
	for user, syms := range positions {
		for _, sp := range syms {
			for outcome, p := range sp {
				if p.Quantity < 0 || p.Locked < 0 {
					t.Fatalf("negative holding for %s %s: %+v", user, outcome, p)
				}
				if outcome == model.OutcomeYes {
					totalYes += p.Quantity + p.Locked
				} else {
					totalNo += p.Quantity + p.Locked
				}
				if stockLocked[user] == nil {
					stockLocked[user] = map[model.Outcome]int64{}
				}
				stockLocked[user][outcome] += p.Locked
			}
		}
	}
	if totalYes != totalNo {
		t.Fatalf("token parity broken: yes=%d no=%d", totalYes, totalNo)
	}

	// Walk both sides: a Bid resting at level price lp reserved
	// qty × (resolution − lp); an Exit locked qty tokens of the side's
	// own outcome.
	var bidLocked int64
	exitLocked := map[string]map[model.Outcome]int64{}
	sides := map[model.Outcome]model.SideSnapshot{
		model.OutcomeYes: snap.Yes,
		model.OutcomeNo:  snap.No,
	}
	for sideOutcome, side := range sides {
		for priceStr, lv := range side {
			lp := minorFromMajorString(t, priceStr)
			var total int64
			for _, o := range lv.Orders {
				if o.Quantity <= 0 {
					t.Fatalf("non-positive resting quantity: %+v", o)
				}
				total += o.Quantity
				switch o.Kind {
				case model.KindBid:
					bidLocked += o.Quantity * (int64(model.ResolutionValue) - lp)
				case model.KindExit:
					if exitLocked[o.UserID] == nil {
						exitLocked[o.UserID] = map[model.Outcome]int64{}
					}
					exitLocked[o.UserID][sideOutcome] += o.Quantity
				}
			}
			if total != lv.Total {
				t.Fatalf("level total %d does not match orders %d at %s", lv.Total, total, priceStr)
			}
		}
	}

	if totalMoneyLocked != bidLocked {
		t.Fatalf("money lock conservation broken: ledger=%d book=%d", totalMoneyLocked, bidLocked)
	}
	for user, byOutcome := range stockLocked {
		for outcome, locked := range byOutcome {
			if locked != exitLocked[user][outcome] {
				t.Fatalf("stock lock conservation broken for %s %s: ledger=%d book=%d",
					user, outcome, locked, exitLocked[user][outcome])
			}
		}
	}
	for user, byOutcome := range exitLocked {
		for outcome, locked := range byOutcome {
			if locked != stockLocked[user][outcome] {
				t.Fatalf("exit without backing lock for %s %s: book=%d ledger=%d",
					user, outcome, locked, stockLocked[user][outcome])
			}
		}
	}
}
