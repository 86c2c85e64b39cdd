package normalize

import (
	"strings"

	"github.com/placemesh/placemesh/pkg/models"
)

// priceWords maps descriptive price words onto tier tokens
var priceWords = map[string]models.PriceRange{
	"$":          models.PriceBudget,
	"$$":         models.PriceModerate,
	"$$$":        models.PriceExpensive,
	"$$$$":       models.PriceLuxury,
	"budget":     models.PriceBudget,
	"cheap":      models.PriceBudget,
	"affordable": models.PriceBudget,
	"moderate":   models.PriceModerate,
	"expensive":  models.PriceExpensive,
	"luxury":     models.PriceLuxury,
}

// NormalizePriceRange maps a price token or descriptive word to one of the
// four tier tokens.
func NormalizePriceRange(input string) (models.PriceRange, bool) {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return "", false
	}
	tier, ok := priceWords[s]
	return tier, ok
}
