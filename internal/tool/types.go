package tool

import "time"

// Category names used for placeholder generation and optimize durations.
const (
	CategoryMuseum     = "museum"
	CategoryAttraction = "attraction"
	CategoryLandmark   = "landmark"
	CategoryRestaurant = "restaurant"
	CategoryCafe       = "cafe"
	CategoryShopping   = "shopping"
	CategoryPark       = "park"
	CategoryBeach      = "beach"
	CategoryNightlife  = "nightlife"
	CategoryHotel      = "hotel"
)

// Place is a point of interest found by the route tool.
type Place struct {
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Lat         float64  `json:"lat"`
	Lng         float64  `json:"lng"`
	Rating      float64  `json:"rating"`
	Tags        []string `json:"tags,omitempty"`
}

// Flight is an indicative flight offer.
type Flight struct {
	Carrier   string    `json:"carrier"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Departure time.Time `json:"departure"`
	Duration  string    `json:"duration"`
	PriceUSD  float64   `json:"price_usd"`
}

// RouteData is the route branch payload.
type RouteData struct {
	Destination string   `json:"destination"`
	Places      []Place  `json:"places"`
	Flights     []Flight `json:"flights,omitempty"`
}

// Trend is a trending activity or spot.
type Trend struct {
	Title    string   `json:"title"`
	Category string   `json:"category"`
	Hashtags []string `json:"hashtags,omitempty"`
	Score    float64  `json:"score"`
	Location string   `json:"location,omitempty"`
}

// TrendData is the trend branch payload.
type TrendData struct {
	Trends []Trend `json:"trends"`
}

// Venue is a hotel, restaurant or bookable attraction.
type Venue struct {
	Name       string   `json:"name"`
	Category   string   `json:"category"`
	Address    string   `json:"address,omitempty"`
	Rating     float64  `json:"rating"`
	PriceLevel int      `json:"price_level"`
	Tags       []string `json:"tags,omitempty"`
}

// DayForecast is one day of weather.
type DayForecast struct {
	Day          int     `json:"day"`
	Condition    string  `json:"condition"`
	HighC        float64 `json:"high_c"`
	LowC         float64 `json:"low_c"`
	PrecipChance float64 `json:"precip_chance"`
}

// Forecast is the weather tool payload.
type Forecast struct {
	Days []DayForecast `json:"days"`
}

// Rainy reports whether rain is likely on day.
func (f Forecast) Rainy(day int) bool {
	for _, d := range f.Days {
		if d.Day == day {
			return d.PrecipChance >= 0.6
		}
	}
	return false
}

// VenueData is the venue branch payload. Weather rides along as context for
// indoor/outdoor choices and may be nil.
type VenueData struct {
	Hotels      []Venue   `json:"hotels"`
	Restaurants []Venue   `json:"restaurants"`
	Attractions []Venue   `json:"attractions"`
	Weather     *Forecast `json:"weather,omitempty"`
}

// Toolkit groups the adapters the research stage uses. Nil entries fall
// back to placeholders.
type Toolkit struct {
	Route   Adapter[RouteData]
	Trend   Adapter[TrendData]
	Venue   Adapter[VenueData]
	Weather Adapter[Forecast]
}
