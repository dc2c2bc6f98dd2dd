package google

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hupe1980/codeagent/core"
	"github.com/hupe1980/codeagent/tool"
)

const (
	// PlacesToolName is the name places search is registered under.
	PlacesToolName = "places_search"
	// WorkingHoursToolName is the name the working hours lookup is registered under.
	WorkingHoursToolName = "get_place_working_hours"
)

// Place is one places_search result.
type Place struct {
	Name       string `json:"name"`
	Address    string `json:"address"`
	RatingInfo string `json:"rating_info"`
	PlaceID    string `json:"place_id"`
}

type placesResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		PlaceID          string   `json:"place_id"`
		Rating           *float64 `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
	} `json:"results"`
}

// PlacesTool searches places with the Places text search API.
type PlacesTool struct {
	opts   Options
	client *resty.Client
}

// NewPlacesTool creates the places_search tool.
func NewPlacesTool(optFns ...func(o *Options)) *PlacesTool {
	opts := newOptions(optFns...)
	return &PlacesTool{opts: opts, client: opts.newClient()}
}

// Name implements tool.Tool.
func (t *PlacesTool) Name() string { return PlacesToolName }

// Description implements tool.Tool.
func (t *PlacesTool) Description() string {
	return "Searches for places using Google Places API and returns a list of matching locations, " +
		"each a dict with keys name, address, rating_info and place_id."
}

// Parameters implements tool.Tool.
func (t *PlacesTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The place or business to search for.",
			},
			"location": map[string]any{
				"type": "string",
				"description": "Optional latitude,longitude coordinates (e.g. '44.8176,20.4633'). " +
					"If not provided, defaults to Belgrade, Serbia.",
				"nullable": true,
			},
			"radius": map[string]any{
				"type":        "integer",
				"description": "Search radius in meters. Default is 5000 meters.",
				"nullable":    true,
			},
		},
		"required": []string{"query"},
	}
}

// Call implements tool.Tool.
func (t *PlacesTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	if t.opts.APIKey == "" {
		return nil, tool.NewToolError(PlacesToolName,
			"Missing Google API key. Make sure you have 'GOOGLE_API_KEY' in your env variables.", tool.CodeExecution)
	}

	query, _ := args["query"].(string)
	if query == "" {
		return nil, tool.NewToolError(PlacesToolName, "query is required", tool.CodeValidation)
	}

	location, _ := args["location"].(string)
	lat, lng := ParseLocation(location)

	radius, ok, err := intArg(args, "radius")
	if err != nil {
		return nil, tool.NewToolError(PlacesToolName, err.Error(), tool.CodeValidation)
	}
	if !ok {
		radius = DefaultRadius
	}

	var result placesResponse
	resp, err := t.client.R().
		SetContext(toolCtx.Context()).
		SetQueryParams(map[string]string{
			"key":      t.opts.APIKey,
			"query":    query,
			"location": formatCoords(lat, lng),
			"radius":   strconv.Itoa(radius),
		}).
		SetResult(&result).
		Get(t.opts.PlacesURL)
	if err != nil {
		return nil, tool.NewToolError(PlacesToolName,
			fmt.Sprintf("Error making request to Google Places API: %v", err), tool.CodeExecution)
	}
	if resp.IsError() {
		return nil, tool.NewToolError(PlacesToolName,
			fmt.Sprintf("Error making request to Google Places API: status %d", resp.StatusCode()), tool.CodeExecution)
	}
	if result.ErrorMessage != "" {
		return nil, tool.NewToolError(PlacesToolName,
			fmt.Sprintf("Google Places API error %s: %s", result.Status, result.ErrorMessage), tool.CodeExecution)
	}

	toolCtx.LogDebug("tool.places.results", "query", query, "count", len(result.Results))

	if len(result.Results) == 0 {
		return fmt.Sprintf("No places found for '%s' within %dm of coordinates %s.", query, radius, formatCoords(lat, lng)), nil
	}

	places := make([]Place, 0, len(result.Results))
	for _, r := range result.Results {
		p := Place{
			Name:    r.Name,
			Address: r.FormattedAddress,
			PlaceID: r.PlaceID,
		}
		if p.Name == "" {
			p.Name = "Unnamed location"
		}
		if p.Address == "" {
			p.Address = "No address available"
		}
		if p.PlaceID == "" {
			p.PlaceID = "No ID"
		}
		if r.Rating != nil {
			p.RatingInfo = fmt.Sprintf("\nRating: %s/5 (%d reviews)", strconv.FormatFloat(*r.Rating, 'f', -1, 64), r.UserRatingsTotal)
		}
		places = append(places, p)
	}

	return places, nil
}

// ParseLocation parses "lat,lng"; malformed or empty input yields the
// Belgrade defaults.
func ParseLocation(location string) (float64, float64) {
	parts := strings.Split(location, ",")
	if len(parts) != 2 {
		return DefaultLatitude, DefaultLongitude
	}

	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return DefaultLatitude, DefaultLongitude
	}

	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return DefaultLatitude, DefaultLongitude
	}

	return lat, lng
}

func formatCoords(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		Name         string `json:"name"`
		URL          string `json:"url"`
		OpeningHours *struct {
			Periods []struct {
				Open *struct {
					Time string `json:"time"`
				} `json:"open"`
				Close *struct {
					Time string `json:"time"`
				} `json:"close"`
			} `json:"periods"`
		} `json:"opening_hours"`
	} `json:"result"`
}

// WorkingHours is the result of get_place_working_hours. Times use the
// 24-hour "HHMM" format.
type WorkingHours struct {
	OpenTime  string `json:"open_time"`
	CloseTime string `json:"close_time"`
}

// WorkingHoursTool fetches opening hours through the Place Details API.
type WorkingHoursTool struct {
	opts   Options
	client *resty.Client
}

// NewWorkingHoursTool creates the get_place_working_hours tool.
func NewWorkingHoursTool(optFns ...func(o *Options)) *WorkingHoursTool {
	opts := newOptions(optFns...)
	return &WorkingHoursTool{opts: opts, client: opts.newClient()}
}

// Name implements tool.Tool.
func (t *WorkingHoursTool) Name() string { return WorkingHoursToolName }

// Description implements tool.Tool.
func (t *WorkingHoursTool) Description() string {
	return "Fetches working hours for a place using the Google Places API. Returns a dict with fields " +
		"open_time and close_time in 24-hour format (e.g. '0900' and '1700')."
}

// Parameters implements tool.Tool.
func (t *WorkingHoursTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"place_id": map[string]any{
				"type":        "string",
				"description": "The Google Place ID for the location you want information about",
			},
		},
		"required": []string{"place_id"},
	}
}

// Call implements tool.Tool.
func (t *WorkingHoursTool) Call(toolCtx *core.ToolContext, args map[string]any) (any, error) {
	if t.opts.APIKey == "" {
		return nil, tool.NewToolError(WorkingHoursToolName,
			"Missing Google API key. Make sure you have 'GOOGLE_API_KEY' in your env variables.", tool.CodeExecution)
	}

	placeID, _ := args["place_id"].(string)
	if placeID == "" {
		return nil, tool.NewToolError(WorkingHoursToolName, "place_id is required", tool.CodeValidation)
	}

	var result detailsResponse
	resp, err := t.client.R().
		SetContext(toolCtx.Context()).
		SetQueryParams(map[string]string{
			"place_id": placeID,
			"fields":   "name,url,opening_hours",
			"key":      t.opts.APIKey,
		}).
		SetResult(&result).
		Get(t.opts.DetailsURL)
	if err != nil {
		return nil, tool.NewToolError(WorkingHoursToolName,
			fmt.Sprintf("Error making request to Google Places API: %v", err), tool.CodeExecution)
	}
	if resp.IsError() {
		return nil, tool.NewToolError(WorkingHoursToolName,
			fmt.Sprintf("Error making request to Google Places API: status %d", resp.StatusCode()), tool.CodeExecution)
	}

	oh := result.Result.OpeningHours
	if oh == nil || len(oh.Periods) == 0 || oh.Periods[0].Open == nil {
		return nil, tool.NewToolError(WorkingHoursToolName,
			fmt.Sprintf("no opening hours available for place %s", placeID), tool.CodeExecution)
	}

	period := oh.Periods[0]
	hours := WorkingHours{OpenTime: period.Open.Time}
	if period.Close != nil {
		hours.CloseTime = period.Close.Time
	}

	return hours, nil
}
