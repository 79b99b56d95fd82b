package tool

import (
	"context"
	"errors"
	"fmt"
	"time"

	"calendarbot/internal/domain"
	"calendarbot/internal/weather"
)

func getWeatherDef(client *weather.Client) Definition {
	return Definition{
		Name:        GetWeather,
		Description: "Get the daily weather forecast for a place, useful before planning outdoor events.",
		Schema: Schema{
			Properties: map[string]Param{
				"location": {Type: "string", Description: "City or place name"},
				"date":     {Type: "string", Format: "date", Description: "Day to forecast, YYYY-MM-DD; defaults to today"},
			},
			Required: []string{"location"},
		},
		Handler: func(ctx context.Context, args Args, _ domain.Caller) Outcome {
			var date time.Time
			if s := args.String("date"); s != "" {
				d, err := time.Parse(dateLayout, s)
				if err != nil {
					return Fail(fmt.Errorf("date: %q is not YYYY-MM-DD", s))
				}
				date = d
			}
			f, err := client.Forecast(ctx, args.String("location"), date)
			if errors.Is(err, weather.ErrLocationNotFound) {
				return Neutral(err.Error())
			}
			if err != nil {
				return Fail(err)
			}
			return Ok(f)
		},
		Summarize: func(o Outcome) (string, error) {
			if o.Kind == KindNeutral {
				return o.Message, nil
			}
			f, ok := o.Payload.(*weather.Forecast)
			if !ok {
				return "", fmt.Errorf("unexpected payload %T", o.Payload)
			}
			return fmt.Sprintf("%s, %s on %s: %s, %.0f to %.0f°C, %d%% chance of precipitation",
				f.Place.Name, f.Place.Country, f.Date, f.Condition, f.TempMinC, f.TempMaxC, f.PrecipitationProbability), nil
		},
	}
}
