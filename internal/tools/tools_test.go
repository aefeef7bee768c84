package tools

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := Default()

	got, ok := r.Get("calculate_age")
	require.True(t, ok)
	assert.Equal(t, "calculate_age", got.Name())

	_, ok = r.Get("launch_missiles")
	assert.False(t, ok)

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "calculate_age", list[0].Name())
	assert.Equal(t, "get_current_weather", list[1].Name())
	assert.Equal(t, "get_weather_forecast", list[2].Name())
}

func TestAgeCalculator(t *testing.T) {
	fixed := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	age := &AgeCalculator{now: func() time.Time { return fixed }}
	ctx := context.Background()

	tests := []struct {
		name string
		args string
		want string
	}{
		{
			name: "birthday already passed this year",
			args: `{"date_of_birth":"1990-03-15"}`,
			want: "36",
		},
		{
			name: "birthday later this year",
			args: `{"date_of_birth":"1990-11-02"}`,
			want: "35",
		},
		{
			name: "birthday today",
			args: `{"date_of_birth":"2000-08-31"}`,
			want: "26",
		},
		{
			name: "invalid format",
			args: `{"date_of_birth":"15.03.1990"}`,
			want: "Invalid date format. Please use YYYY-MM-DD.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := age.Call(ctx, tt.args)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := age.Call(ctx, `not json`)
	assert.Error(t, err)
}

func TestCurrentWeather(t *testing.T) {
	weather := NewCurrentWeather()
	ctx := context.Background()

	tests := []struct {
		args string
		want string
	}{
		{`{"city":"London"}`, "The current weather in London is: Cloudy, 15°C."},
		{`{"city":"paris"}`, "The current weather in Paris is: Sunny, 22°C."},
		{`{"city":"  NEW york "}`, "The current weather in New York is: Partly Cloudy, 18°C."},
		{`{"city":"UnknownCity"}`, "Weather information not available for UnknownCity."},
	}

	for _, tt := range tests {
		got, err := weather.Call(ctx, tt.args)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := weather.Call(ctx, `{{`)
	assert.Error(t, err)
}

func TestWeatherForecast(t *testing.T) {
	forecast := NewWeatherForecast()
	ctx := context.Background()

	got, err := forecast.Call(ctx, `{"city":"London","days":"3"}`)
	require.NoError(t, err)
	assert.Equal(t, "The weather forecast for London for the next 3 days is: Rain expected.", got)

	got, err = forecast.Call(ctx, `{"city":"UnknownCity","days":"5"}`)
	require.NoError(t, err)
	assert.Equal(t, "Weather forecast not available for UnknownCity.", got)
}

func TestToolSchemas(t *testing.T) {
	for _, tool := range Default().List() {
		params := tool.Parameters()
		assert.Equal(t, "object", params["type"], tool.Name())
		assert.NotEmpty(t, tool.Description(), tool.Name())
	}
}
