// Package tools holds the functions the chat backends may call during a
// completion. Each tool describes itself with a JSON schema and executes
// against JSON-encoded arguments, matching the OpenAI-compatible function
// calling wire format.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Tool is one callable function exposed to the model.
type Tool interface {
	// Name is the function name sent to the model. Must be unique.
	Name() string

	// Description tells the model when to call the tool.
	Description() string

	// Parameters is the JSON schema of the arguments object.
	Parameters() map[string]interface{}

	// Call executes the tool with JSON-encoded arguments and returns the
	// result text handed back to the model. Bad argument values produce a
	// result message for the model, not an error; errors are reserved for
	// arguments that do not parse at all.
	Call(ctx context.Context, arguments string) (string, error)
}

// Registry holds the tools available to chat completions.
type Registry struct {
	tools map[string]Tool
}

// NewRegistry creates a registry with the given tools. A later tool with a
// duplicate name replaces the earlier one.
func NewRegistry(tools ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		r.tools[tool.Name()] = tool
	}
	return r
}

// Get returns the named tool.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all tools ordered by name.
func (r *Registry) List() []Tool {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// AgeCalculator computes a person's age in full years from a birth date.
type AgeCalculator struct {
	// now allows tests to pin the clock. Defaults to time.Now.
	now func() time.Time
}

// NewAgeCalculator creates the age calculator tool.
func NewAgeCalculator() *AgeCalculator {
	return &AgeCalculator{now: time.Now}
}

func (a *AgeCalculator) Name() string { return "calculate_age" }

func (a *AgeCalculator) Description() string {
	return "Calculates the age based on the provided date of birth."
}

func (a *AgeCalculator) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"date_of_birth": map[string]interface{}{
				"type":        "string",
				"description": "Date of birth in YYYY-MM-DD format",
			},
		},
		"required": []string{"date_of_birth"},
	}
}

func (a *AgeCalculator) Call(_ context.Context, arguments string) (string, error) {
	var args struct {
		DateOfBirth string `json:"date_of_birth"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("parsing arguments: %w", err)
	}

	birth, err := time.Parse("2006-01-02", args.DateOfBirth)
	if err != nil {
		return "Invalid date format. Please use YYYY-MM-DD.", nil
	}

	now := a.now()
	years := now.Year() - birth.Year()
	anniversary := birth.AddDate(years, 0, 0)
	if anniversary.After(now) {
		years--
	}
	return fmt.Sprintf("%d", years), nil
}

// CurrentWeather reports current conditions for a handful of known cities.
// Responses are canned; there is no live weather feed.
type CurrentWeather struct{}

// NewCurrentWeather creates the current weather tool.
func NewCurrentWeather() *CurrentWeather {
	return &CurrentWeather{}
}

func (w *CurrentWeather) Name() string { return "get_current_weather" }

func (w *CurrentWeather) Description() string {
	return "Gets the current weather for a specified city."
}

func (w *CurrentWeather) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city": map[string]interface{}{
				"type":        "string",
				"description": "The city to get the weather for.",
			},
		},
		"required": []string{"city"},
	}
}

func (w *CurrentWeather) Call(_ context.Context, arguments string) (string, error) {
	var args struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("parsing arguments: %w", err)
	}

	switch normalizeCity(args.City) {
	case "london":
		return "The current weather in London is: Cloudy, 15°C.", nil
	case "paris":
		return "The current weather in Paris is: Sunny, 22°C.", nil
	case "new york":
		return "The current weather in New York is: Partly Cloudy, 18°C.", nil
	default:
		return fmt.Sprintf("Weather information not available for %s.", args.City), nil
	}
}

// WeatherForecast reports a canned multi-day forecast for the same cities.
type WeatherForecast struct{}

// NewWeatherForecast creates the weather forecast tool.
func NewWeatherForecast() *WeatherForecast {
	return &WeatherForecast{}
}

func (w *WeatherForecast) Name() string { return "get_weather_forecast" }

func (w *WeatherForecast) Description() string {
	return "Gets the weather forecast for a specified city."
}

func (w *WeatherForecast) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"city": map[string]interface{}{
				"type":        "string",
				"description": "The city to get the weather forecast for.",
			},
			"days": map[string]interface{}{
				"type":        "string",
				"description": "Number of days for the forecast",
			},
		},
		"required": []string{"city", "days"},
	}
}

func (w *WeatherForecast) Call(_ context.Context, arguments string) (string, error) {
	var args struct {
		City string `json:"city"`
		Days string `json:"days"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return "", fmt.Errorf("parsing arguments: %w", err)
	}

	switch normalizeCity(args.City) {
	case "london":
		return fmt.Sprintf("The weather forecast for London for the next %s days is: Rain expected.", args.Days), nil
	case "paris":
		return fmt.Sprintf("The weather forecast for Paris for the next %s days is: Sunny.", args.Days), nil
	case "new york":
		return fmt.Sprintf("The weather forecast for New York for the next %s days is: Variable.", args.Days), nil
	default:
		return fmt.Sprintf("Weather forecast not available for %s.", args.City), nil
	}
}

func normalizeCity(city string) string {
	return strings.ToLower(strings.TrimSpace(city))
}

// Default returns the standard toolset exposed to chat completions.
func Default() *Registry {
	return NewRegistry(NewAgeCalculator(), NewCurrentWeather(), NewWeatherForecast())
}
