package sale

import (
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// MaxItems bounds the number of line items per order.
	MaxItems = 5
	// MaxQuantity bounds the cups ordered per line item.
	MaxQuantity = 3
	// HistoricWindow is how far back historic timestamps may reach.
	HistoricWindow = 365 * 24 * time.Hour

	shopName = "Coffeeshop"
)

type coffee struct {
	name  string
	price decimal.Decimal
}

var menu = []coffee{
	{"Espresso", decimal.RequireFromString("2.20")},
	{"Double Espresso", decimal.RequireFromString("3.10")},
	{"Americano", decimal.RequireFromString("2.80")},
	{"Cappuccino", decimal.RequireFromString("3.50")},
	{"Latte", decimal.RequireFromString("3.70")},
	{"Flat White", decimal.RequireFromString("3.60")},
	{"Macchiato", decimal.RequireFromString("2.90")},
	{"Mocha", decimal.RequireFromString("3.95")},
	{"Cold Brew", decimal.RequireFromString("4.25")},
	{"Chai Latte", decimal.RequireFromString("3.85")},
	{"Iced Latte", decimal.RequireFromString("4.10")},
	{"Hot Chocolate", decimal.RequireFromString("3.20")},
}

var (
	regions  = []string{"EMEA", "NA", "LATAM", "APAC"}
	channels = []string{"counter", "drive-through", "mobile", "kiosk"}
)

// Options controls the shape of generated records.
type Options struct {
	// Historic spreads timestamps over the past HistoricWindow instead of
	// stamping the current time.
	Historic bool
	// Static adds the shop metadata block to every record.
	Static bool
}

// Generator creates sale records. A Generator is not safe for concurrent use;
// every worker owns its own.
type Generator struct {
	opts  Options
	faker *gofakeit.Faker
	now   func() time.Time
}

// NewGenerator returns a Generator seeded from a random source.
func NewGenerator(opts Options) *Generator {
	return &Generator{opts: opts, faker: gofakeit.New(0), now: time.Now}
}

// Next builds a fresh record.
func (g *Generator) Next() *Record {
	rec := &Record{
		Shop:     shopName,
		RecordID: uuid.NewString(),
		Date:     Timestamp(g.date()),
		Customer: g.faker.Name(),
		Location: g.faker.City() + ", " + g.faker.State() + ", " + g.faker.Country(),
	}
	if g.opts.Static {
		rec.Region = g.faker.RandomString(regions)
		rec.Currency = "USD"
		rec.Channel = g.faker.RandomString(channels)
		rec.Terminal = fmt.Sprintf("T%02d", g.faker.Number(1, 20))
	}

	total := decimal.Zero
	items := g.faker.Number(1, MaxItems)
	rec.Order = make([]LineItem, 0, items)
	for i := 0; i < items; i++ {
		c := menu[g.faker.Number(0, len(menu)-1)]
		qty := g.faker.Number(1, MaxQuantity)
		amount := c.price.Mul(decimal.NewFromInt(int64(qty))).Round(2)
		total = total.Add(amount)
		rec.Order = append(rec.Order, LineItem{
			Coffee:      c.name,
			Quantity:    qty,
			SalesAmount: amount.InexactFloat64(),
		})
	}
	rec.SalesAmount = total.Round(2).InexactFloat64()
	return rec
}

func (g *Generator) date() time.Time {
	now := g.now().UTC()
	if !g.opts.Historic {
		return now
	}
	// Second granularity keeps the sample inside the window after the
	// DateLayout truncation.
	back := time.Duration(g.faker.Number(0, int(HistoricWindow/time.Second)-1)) * time.Second
	return now.Add(-back)
}
