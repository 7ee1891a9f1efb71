package order

// Defaults returns the semantic draw order of the basemap catalogue: land
// cover first, then water and terrain, transport, buildings by level of
// detail, points of interest, and labels on top.
func Defaults() RankTable {
	return RankTable{
		"background":        0,
		"land":              5,
		"land_use":          10,
		"land_residential":  15,
		"settlementextents": 20,
		"water":             40,
		"hillshade":         45,
		"contours":          50,
		"contour-labels":    55,
		"roads":             60,
		"infrastructure":    70,

		"buildings_low_lod":    80,
		"buildings_medium_lod": 81,
		"buildings_high_lod":   82,

		"health_areas":      85,
		"health_zones":      86,
		"places":            90,
		"health_facilities": 92,
		"placenames":        100,
		"settlement_names":  101,
	}
}
