// Streamrelay - Live Stream Event Ingestion
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/streamrelay

package normalize

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// SettlementCurrency is the single currency every emitted amount is expressed in.
const SettlementCurrency = "KRW"

// CurrencyBits is the pseudo currency code for Twitch cheers.
const CurrencyBits = "BITS"

// DefaultBitsRate is the fixed KRW value of one bit.
const DefaultBitsRate = 14

// microsPerUnit converts YouTube amountMicros into whole currency units.
var microsPerUnit = decimal.NewFromInt(1_000_000)

// DefaultRates is the static KRW conversion table. Codes are upper case.
// TODO: add a RateSource backed by a live exchange-rate feed.
var DefaultRates = map[string]int64{
	SettlementCurrency: 1,
	CurrencyBits:       DefaultBitsRate,
	"USD":              1350,
	"EUR":              1450,
	"GBP":              1700,
	"JPY":              9,
	"CAD":              990,
	"AUD":              880,
	"TWD":              42,
	"HKD":              173,
	"SGD":              1000,
	"PHP":              24,
	"INR":              16,
	"BRL":              250,
	"MXN":              78,
}

// RateSource supplies the KRW value of one unit of a native currency.
// ok is false when the code is unknown.
type RateSource interface {
	Rate(currency string) (rate decimal.Decimal, ok bool)
}

// StaticRates is a RateSource backed by a fixed table.
type StaticRates struct {
	mu    sync.RWMutex
	rates map[string]decimal.Decimal
}

// NewStaticRates builds a table from integer KRW rates. overrides replace or
// extend DefaultRates.
func NewStaticRates(overrides map[string]int64) *StaticRates {
	s := &StaticRates{rates: make(map[string]decimal.Decimal, len(DefaultRates)+len(overrides))}
	for code, rate := range DefaultRates {
		s.rates[code] = decimal.NewFromInt(rate)
	}
	for code, rate := range overrides {
		s.rates[strings.ToUpper(code)] = decimal.NewFromInt(rate)
	}
	return s
}

// Rate implements RateSource.
func (s *StaticRates) Rate(currency string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rates[strings.ToUpper(strings.TrimSpace(currency))]
	return r, ok
}

// Set replaces the rate for one currency.
func (s *StaticRates) Set(currency string, rate int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rates[strings.ToUpper(currency)] = decimal.NewFromInt(rate)
}

// Converter turns native amounts into integer settlement-currency amounts.
type Converter struct {
	source RateSource
}

// NewConverter wraps a rate source. A nil source uses DefaultRates.
func NewConverter(source RateSource) *Converter {
	if source == nil {
		source = NewStaticRates(nil)
	}
	return &Converter{source: source}
}

// Convert returns amount expressed in KRW, rounded half away from zero.
// Unknown currencies convert 1:1 rather than failing; known reports whether
// the rate table had the code so callers can log the fallback.
func (c *Converter) Convert(amount decimal.Decimal, currency string) (krw int64, known bool) {
	rate, ok := c.source.Rate(currency)
	if !ok {
		rate = decimal.NewFromInt(1)
	}
	return amount.Mul(rate).Round(0).IntPart(), ok
}

// ConvertMicros converts a micro-unit integer (amount * 1,000,000) such as
// YouTube's amountMicros. It also returns the native amount in whole units.
func (c *Converter) ConvertMicros(micros int64, currency string) (krw int64, native decimal.Decimal, known bool) {
	native = decimal.NewFromInt(micros).Div(microsPerUnit)
	krw, known = c.Convert(native, currency)
	return krw, native, known
}

var defaultConverter = NewConverter(nil)

// ConvertToSettlementCurrency converts with the default static table.
func ConvertToSettlementCurrency(amount decimal.Decimal, nativeCurrency string) int64 {
	krw, _ := defaultConverter.Convert(amount, nativeCurrency)
	return krw
}
