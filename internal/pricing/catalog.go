package pricing

// DefaultCatalog returns the built-in price set used when the configuration
// store has no pricing rows yet.  Prices are in whole currency units.
func DefaultCatalog() Catalog {
	return Catalog{
		Services: map[string]Item{
			"anime":    {Name: "Anime / Manga", Price: 700},
			"portrait": {Name: "Realistic Portrait", Price: 1100},
			"couple":   {Name: "Couple Portrait", Price: 1500},
			"family":   {Name: "Family Portrait", Price: 1900},
			"pet":      {Name: "Pet Portrait", Price: 900},
		},
		Sizes: map[string]Item{
			"a5": {Name: "A5 (14.8 x 21 cm)", Price: 200},
			"a4": {Name: "A4 (21 x 29.7 cm)", Price: 300},
			"a3": {Name: "A3 (29.7 x 42 cm)", Price: 500},
		},
		Addons: map[string]Item{
			"none":       {Name: "No Addon", Price: 0},
			"background": {Name: "Detailed Background", Price: 250},
			"frame":      {Name: "Wooden Frame", Price: 350},
			"express":    {Name: "Express Delivery", Price: 500},
		},
	}
}
