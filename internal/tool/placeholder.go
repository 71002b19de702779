package tool

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strings"
	"time"
	"unicode"
)

// Placeholder adapters produce stable stand-in data: the same query always
// yields the same payload, so degraded plans are reproducible and cacheable
// by the client.

func seeded(parts ...string) *rand.Rand {
	h := fnv.New64a()
	for _, p := range parts {
		h.Write([]byte(strings.ToLower(strings.TrimSpace(p))))
		h.Write([]byte{0})
	}
	s := h.Sum64()
	return rand.New(rand.NewPCG(s, s>>1|1))
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		rs := []rune(strings.ToLower(w))
		rs[0] = unicode.ToUpper(rs[0])
		words[i] = string(rs)
	}
	return strings.Join(words, " ")
}

func round1(f float64) float64 {
	return float64(int(f*10+0.5)) / 10
}

var placeTemplates = []struct {
	format   string
	category string
}{
	{"%s National Museum", CategoryMuseum},
	{"%s Old Town", CategoryLandmark},
	{"%s Central Park", CategoryPark},
	{"%s Art Gallery", CategoryMuseum},
	{"%s Harbour Walk", CategoryAttraction},
	{"%s Market Hall", CategoryShopping},
	{"%s Observation Deck", CategoryAttraction},
	{"%s Cathedral", CategoryLandmark},
	{"%s Botanical Garden", CategoryPark},
	{"%s City Beach", CategoryBeach},
	{"%s History Museum", CategoryMuseum},
	{"%s Night Market", CategoryNightlife},
}

// PlaceholderRoute returns deterministic points of interest.
func PlaceholderRoute() Adapter[RouteData] {
	return AdapterFunc[RouteData]{ToolName: "route", Fn: func(_ context.Context, q Query) (RouteData, error) {
		dest := titleCase(q.Destination)
		r := seeded("route", q.Destination)
		lat, lng := r.Float64()*140-70, r.Float64()*360-180

		n := 6 + q.Days*2
		if n > len(placeTemplates) {
			n = len(placeTemplates)
		}
		offset := r.IntN(len(placeTemplates))
		places := make([]Place, 0, n)
		for i := 0; i < n; i++ {
			tpl := placeTemplates[(offset+i)%len(placeTemplates)]
			places = append(places, Place{
				Name:     fmt.Sprintf(tpl.format, dest),
				Category: tpl.category,
				Lat:      lat + r.Float64()*0.1,
				Lng:      lng + r.Float64()*0.1,
				Rating:   round1(3.8 + r.Float64()*1.2),
				Tags:     []string{tpl.category},
			})
		}

		data := RouteData{Destination: dest, Places: places}
		if q.Origin != "" {
			dep := time.Date(2025, 1, 1, 8+r.IntN(10), 0, 0, 0, time.UTC)
			data.Flights = []Flight{{
				Carrier:   "Placeholder Air",
				From:      titleCase(q.Origin),
				To:        dest,
				Departure: dep,
				Duration:  fmt.Sprintf("%dh%02dm", 1+r.IntN(12), r.IntN(60)),
				PriceUSD:  float64(150 + r.IntN(900)),
			}}
		}
		return data, nil
	}}
}

var trendTemplates = []struct {
	format   string
	category string
}{
	{"Sunset views at %s waterfront", CategoryAttraction},
	{"Street food crawl in %s", CategoryRestaurant},
	{"Hidden cafes of %s", CategoryCafe},
	{"%s rooftop bars", CategoryNightlife},
	{"Vintage shopping in %s", CategoryShopping},
	{"Morning run through %s parks", CategoryPark},
}

// PlaceholderTrend returns deterministic trending activities.
func PlaceholderTrend() Adapter[TrendData] {
	return AdapterFunc[TrendData]{ToolName: "trend", Fn: func(_ context.Context, q Query) (TrendData, error) {
		dest := titleCase(q.Destination)
		tag := "#" + strings.ReplaceAll(strings.ToLower(dest), " ", "")
		r := seeded("trend", q.Destination)

		trends := make([]Trend, 0, 4)
		offset := r.IntN(len(trendTemplates))
		for i := 0; i < 4; i++ {
			tpl := trendTemplates[(offset+i)%len(trendTemplates)]
			trends = append(trends, Trend{
				Title:    fmt.Sprintf(tpl.format, dest),
				Category: tpl.category,
				Hashtags: []string{tag, "#travel"},
				Score:    round1(50 + r.Float64()*50),
				Location: dest,
			})
		}
		return TrendData{Trends: trends}, nil
	}}
}

var restaurantTags = [][]string{
	{"vegetarian", "vegan"},
	{"halal"},
	{"gluten_free"},
	{},
	{"vegetarian", "kosher"},
	{"pescatarian"},
}

// PlaceholderVenue returns deterministic hotels, restaurants and attractions.
func PlaceholderVenue() Adapter[VenueData] {
	return AdapterFunc[VenueData]{ToolName: "venue", Fn: func(_ context.Context, q Query) (VenueData, error) {
		dest := titleCase(q.Destination)
		r := seeded("venue", q.Destination)

		price := 2
		switch q.BudgetLevel {
		case "budget":
			price = 1
		case "luxury":
			price = 4
		}

		var data VenueData
		for i, name := range []string{"Grand", "Central", "Garden"} {
			data.Hotels = append(data.Hotels, Venue{
				Name:       fmt.Sprintf("%s %s Hotel", dest, name),
				Category:   CategoryHotel,
				Rating:     round1(3.5 + r.Float64()*1.5),
				PriceLevel: price + i%2,
			})
		}
		for i, tags := range restaurantTags {
			data.Restaurants = append(data.Restaurants, Venue{
				Name:       fmt.Sprintf("%s Kitchen No. %d", dest, i+1),
				Category:   CategoryRestaurant,
				Rating:     round1(3.5 + r.Float64()*1.5),
				PriceLevel: price,
				Tags:       tags,
			})
		}
		data.Attractions = append(data.Attractions,
			Venue{Name: dest + " Guided Walking Tour", Category: CategoryAttraction, Rating: 4.5, PriceLevel: 1},
			Venue{Name: dest + " Coffee House", Category: CategoryCafe, Rating: 4.3, PriceLevel: 1},
		)
		return data, nil
	}}
}

var conditions = []string{"sunny", "partly cloudy", "cloudy", "rain"}

// PlaceholderWeather returns a deterministic forecast.
func PlaceholderWeather() Adapter[Forecast] {
	return AdapterFunc[Forecast]{ToolName: "weather", Fn: func(_ context.Context, q Query) (Forecast, error) {
		r := seeded("weather", q.Destination)
		days := q.Days
		if days <= 0 {
			days = 1
		}
		f := Forecast{Days: make([]DayForecast, 0, days)}
		for d := 1; d <= days; d++ {
			c := conditions[r.IntN(len(conditions))]
			chance := round1(r.Float64() * 0.5)
			if c == "rain" {
				chance = round1(0.6 + r.Float64()*0.4)
			}
			low := round1(5 + r.Float64()*15)
			f.Days = append(f.Days, DayForecast{
				Day:          d,
				Condition:    c,
				LowC:         low,
				HighC:        round1(low + 4 + r.Float64()*8),
				PrecipChance: chance,
			})
		}
		return f, nil
	}}
}

// Placeholders returns a toolkit made only of placeholder adapters.
func Placeholders() Toolkit {
	return Toolkit{
		Route:   PlaceholderRoute(),
		Trend:   PlaceholderTrend(),
		Venue:   PlaceholderVenue(),
		Weather: PlaceholderWeather(),
	}
}
