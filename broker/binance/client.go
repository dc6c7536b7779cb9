// Package binance implements broker.Venue on the Binance spot REST and
// websocket APIs through go-binance.
package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gobinance "github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/rustyeddy/spottrader/broker"
	"github.com/shopspring/decimal"
)

type Config struct {
	APIKey    string
	APISecret string
	Testnet   bool

	// HTTPTimeout bounds every REST round trip. Defaults to 10s.
	HTTPTimeout time.Duration
}

type Client struct {
	api *gobinance.Client
	log *slog.Logger
}

var (
	_ broker.Venue       = (*Client)(nil)
	_ broker.OrderLookup = (*Client)(nil)
)

func New(cfg Config, log *slog.Logger) *Client {
	if cfg.Testnet {
		gobinance.UseTestnet = true
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	api := gobinance.NewClient(cfg.APIKey, cfg.APISecret)
	api.HTTPClient = &http.Client{Timeout: cfg.HTTPTimeout}
	return &Client{api: api, log: log}
}

func (c *Client) PlaceMarketOrder(ctx context.Context, req broker.OrderRequest) (broker.Fill, error) {
	side := gobinance.SideTypeBuy
	if req.Side == broker.Sell {
		side = gobinance.SideTypeSell
	}

	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(side).
		Type(gobinance.OrderTypeMarket).
		Quantity(strconv.FormatFloat(req.Quantity, 'f', -1, 64)).
		NewOrderRespType(gobinance.NewOrderRespTypeFULL)
	if req.ClientID != "" {
		svc = svc.NewClientOrderID(req.ClientID)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		return broker.Fill{}, classify("place order", err)
	}
	return fillFromResponse(req, resp)
}

// fillFromResponse averages the per-trade fills. When the venue omits
// them it falls back to cumulative quote over executed quantity.
func fillFromResponse(req broker.OrderRequest, resp *gobinance.CreateOrderResponse) (broker.Fill, error) {
	f := broker.Fill{
		OrderID:  strconv.FormatInt(resp.OrderID, 10),
		ClientID: resp.ClientOrderID,
		Symbol:   resp.Symbol,
		Side:     req.Side,
	}
	if f.ClientID == "" {
		f.ClientID = req.ClientID
	}

	var qty, quote, commission decimal.Decimal
	for _, fl := range resp.Fills {
		if fl == nil {
			continue
		}
		p := parseDecimal(fl.Price)
		q := parseDecimal(fl.Quantity)
		qty = qty.Add(q)
		quote = quote.Add(p.Mul(q))
		commission = commission.Add(parseDecimal(fl.Commission))
		if f.CommissionAsset == "" {
			f.CommissionAsset = fl.CommissionAsset
		}
	}
	if qty.IsZero() {
		qty = parseDecimal(resp.ExecutedQuantity)
		quote = parseDecimal(resp.CummulativeQuoteQuantity)
	}
	if !qty.IsPositive() {
		return broker.Fill{}, &broker.RejectedError{Op: "place order", Msg: fmt.Sprintf("order %d not filled (status %s)", resp.OrderID, resp.Status)}
	}

	f.Quantity, _ = qty.Float64()
	f.QuoteQuantity, _ = quote.Float64()
	f.AvgPrice, _ = quote.Div(qty).Float64()
	f.Commission, _ = commission.Float64()
	return f, nil
}

// LookupOrder queries an order by the client id it was placed with.
// Binance answers -2013 for an id it never accepted.
func (c *Client) LookupOrder(ctx context.Context, symbol, clientID string) (broker.Fill, bool, error) {
	o, err := c.api.NewGetOrderService().Symbol(symbol).OrigClientOrderID(clientID).Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == codeNoSuchOrder {
			return broker.Fill{}, false, nil
		}
		return broker.Fill{}, false, classify("lookup order", err)
	}
	return fillFromOrder(o)
}

// fillFromOrder reports an executed order. One still working is a
// transient error so the caller asks again rather than resubmitting.
func fillFromOrder(o *gobinance.Order) (broker.Fill, bool, error) {
	switch o.Status {
	case gobinance.OrderStatusTypeNew, gobinance.OrderStatusTypePartiallyFilled, gobinance.OrderStatusTypePendingCancel:
		return broker.Fill{}, false, &broker.TransientError{
			Op:  "lookup order",
			Err: fmt.Errorf("order %d still %s", o.OrderID, o.Status),
		}
	}
	qty := parseDecimal(o.ExecutedQuantity)
	if !qty.IsPositive() {
		return broker.Fill{}, false, nil
	}
	quote := parseDecimal(o.CummulativeQuoteQuantity)

	f := broker.Fill{
		OrderID:  strconv.FormatInt(o.OrderID, 10),
		ClientID: o.ClientOrderID,
		Symbol:   o.Symbol,
		Side:     broker.Buy,
	}
	if o.Side == gobinance.SideTypeSell {
		f.Side = broker.Sell
	}
	f.Quantity, _ = qty.Float64()
	f.QuoteQuantity, _ = quote.Float64()
	f.AvgPrice, _ = quote.Div(qty).Float64()
	return f, true, nil
}

func (c *Client) GetPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, classify("get price", err)
	}
	for _, p := range prices {
		if p != nil && p.Symbol == symbol {
			return parseFloat(p.Price), nil
		}
	}
	return 0, &broker.RejectedError{Op: "get price", Msg: "no price for " + symbol}
}

// GetBalance returns the free balance of asset. An asset the account has
// never held is zero.
func (c *Client) GetBalance(ctx context.Context, asset string) (float64, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, classify("get balance", err)
	}
	for _, b := range acct.Balances {
		if strings.EqualFold(b.Asset, asset) {
			return parseFloat(b.Free), nil
		}
	}
	return 0, nil
}

func (c *Client) GetSymbolConstraints(ctx context.Context, symbol string) (broker.SymbolConstraints, error) {
	info, err := c.api.NewExchangeInfoService().Symbol(symbol).Do(ctx)
	if err != nil {
		return broker.SymbolConstraints{}, classify("get symbol constraints", err)
	}
	for _, s := range info.Symbols {
		if s.Symbol == symbol {
			return constraintsFromFilters(symbol, s.Filters), nil
		}
	}
	return broker.SymbolConstraints{}, &broker.RejectedError{Op: "get symbol constraints", Code: -1121, Msg: "invalid symbol " + symbol}
}

// constraintsFromFilters reads LOT_SIZE, PRICE_FILTER and the notional
// filter, which is NOTIONAL on current symbols and MIN_NOTIONAL on older
// ones.
func constraintsFromFilters(symbol string, filters []map[string]interface{}) broker.SymbolConstraints {
	c := broker.SymbolConstraints{Symbol: symbol}
	for _, f := range filters {
		switch f["filterType"] {
		case "LOT_SIZE":
			c.LotStep = decimalField(f, "stepSize")
			c.MinQty = decimalField(f, "minQty")
			c.MaxQty = decimalField(f, "maxQty")
		case "PRICE_FILTER":
			c.PriceStep = decimalField(f, "tickSize")
		case "NOTIONAL", "MIN_NOTIONAL":
			if n := decimalField(f, "minNotional"); n.GreaterThan(c.MinNotional) {
				c.MinNotional = n
			}
		}
	}
	return c
}

func decimalField(f map[string]interface{}, key string) decimal.Decimal {
	s, _ := f[key].(string)
	return parseDecimal(s)
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
