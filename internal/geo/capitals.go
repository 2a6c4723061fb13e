package geo

import "sort"

// Capital is a country's seat of government
type Capital struct {
	Country string // ISO3
	Name    string
	Point   Point
}

// latinAmerica lists the seats of government of the 20 Latin American
// states covered by the study. Bolivia uses La Paz, the seat of government.
var latinAmerica = []Capital{
	{"ARG", "Buenos Aires", Point{-34.6037, -58.3816}},
	{"BOL", "La Paz", Point{-16.4897, -68.1193}},
	{"BRA", "Brasilia", Point{-15.7939, -47.8828}},
	{"CHL", "Santiago", Point{-33.4489, -70.6693}},
	{"COL", "Bogota", Point{4.7110, -74.0721}},
	{"CRI", "San Jose", Point{9.9281, -84.0907}},
	{"CUB", "Havana", Point{23.1136, -82.3666}},
	{"DOM", "Santo Domingo", Point{18.4861, -69.9312}},
	{"ECU", "Quito", Point{-0.1807, -78.4678}},
	{"GTM", "Guatemala City", Point{14.6349, -90.5069}},
	{"HND", "Tegucigalpa", Point{14.0723, -87.1921}},
	{"HTI", "Port-au-Prince", Point{18.5944, -72.3074}},
	{"MEX", "Mexico City", Point{19.4326, -99.1332}},
	{"NIC", "Managua", Point{12.1150, -86.2362}},
	{"PAN", "Panama City", Point{8.9824, -79.5199}},
	{"PER", "Lima", Point{-12.0464, -77.0428}},
	{"PRY", "Asuncion", Point{-25.2637, -57.5759}},
	{"SLV", "San Salvador", Point{13.6929, -89.2182}},
	{"URY", "Montevideo", Point{-34.9011, -56.1645}},
	{"VEN", "Caracas", Point{10.4806, -66.9036}},
}

// Capitals returns the built-in gazetteer sorted by country code
func Capitals() []Capital {
	out := append([]Capital(nil), latinAmerica...)
	sort.Slice(out, func(i, j int) bool { return out[i].Country < out[j].Country })
	return out
}

// LookupCapital finds a capital by ISO3 code
func LookupCapital(country string) (Capital, bool) {
	for _, c := range latinAmerica {
		if c.Country == country {
			return c, true
		}
	}
	return Capital{}, false
}
