package supervisor

import (
	"sync"

	"github.com/shopspring/decimal"
)

// PriceCache is the process-wide symbol -> last_price map (spec §5 shared
// resource): written by each supervisor's ticker loop, read by the HTTP
// read path for unrealized-profit computation. One instance is shared
// across every BotSupervisor in the Registry.
type PriceCache struct {
	mu     sync.RWMutex
	prices map[string]decimal.Decimal
}

func NewPriceCache() *PriceCache {
	return &PriceCache{prices: make(map[string]decimal.Decimal)}
}

func (c *PriceCache) Set(symbol string, price decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[symbol] = price
}

func (c *PriceCache) Get(symbol string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.prices[symbol]
	return p, ok
}
