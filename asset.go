package portfolio

import (
	"slices"
	"strings"
)

// AssetType classifies an asset.
type AssetType string

const (
	Stock      AssetType = "STOCK"
	ETF        AssetType = "ETF"
	REIT       AssetType = "REIT"
	OtherAsset AssetType = "OTHER"
)

var assetTypes = []AssetType{Stock, ETF, REIT, OtherAsset}

// ParseAssetType parses an asset type in any case. An empty string is OTHER.
func ParseAssetType(s string) (AssetType, error) {
	if strings.TrimSpace(s) == "" {
		return OtherAsset, nil
	}
	t := AssetType(strings.ToUpper(strings.TrimSpace(s)))
	if !slices.Contains(assetTypes, t) {
		return "", invalid("type", "unknown asset type %q", s)
	}
	return t, nil
}

// Asset is a tradable instrument. (Symbol, Exchange) identifies it.
type Asset struct {
	ID       string    `json:"id"`
	Symbol   string    `json:"symbol"`
	Exchange string    `json:"exchange"`
	Name     string    `json:"name,omitempty"`
	Type     AssetType `json:"type"`
	Currency string    `json:"currency"`
}

// Ticker returns SYMBOL.EXCHANGE, or the symbol alone when the exchange is unknown.
func (a Asset) Ticker() string {
	if a.Exchange == "" {
		return a.Symbol
	}
	return a.Symbol + "." + a.Exchange
}

func (a Asset) Validate() error {
	switch {
	case strings.TrimSpace(a.Symbol) == "":
		return invalid("symbol", "is required")
	case !ValidCurrency(a.Currency):
		return invalid("currency", "unknown currency %q", a.Currency)
	}
	if _, err := ParseAssetType(string(a.Type)); err != nil {
		return err
	}
	return nil
}
