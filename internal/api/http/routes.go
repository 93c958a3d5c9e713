package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/i474232898/irrigation-assistant/internal/advisor"
	"github.com/i474232898/irrigation-assistant/internal/livestate"
	"github.com/i474232898/irrigation-assistant/internal/weather"
)

var validate = validator.New()

// Recommender produces and serves recommendations. *advisor.Orchestrator implements it.
type Recommender interface {
	Run(ctx context.Context, loc weather.Location) (advisor.Recommendation, error)
	Latest() (advisor.Recommendation, error)
	Upcoming(ctx context.Context, horizon time.Duration) (weather.Batch, error)
}

// Responder answers chat messages. *advisor.ChatResponder implements it.
type Responder interface {
	Reply(ctx context.Context, text string, state livestate.DeviceState) string
}

// Deps are the collaborators behind the routes.
type Deps struct {
	Advisor         Recommender
	State           *livestate.Service
	Chat            Responder
	DefaultLocation weather.Location
	Version         string
	Metrics         http.Handler
	Logger          *slog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, deps Deps) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "version": deps.Version})
	})

	app.Get("/get-recommendation", func(c *fiber.Ctx) error {
		var q locationQuery
		if err := q.bind(c); err != nil {
			return err
		}

		rec, err := deps.Advisor.Run(c.UserContext(), q.toLocation(deps.DefaultLocation))
		if err != nil {
			return err
		}
		return c.JSON(rec)
	})

	app.Get("/recommendation", func(c *fiber.Ctx) error {
		rec, err := deps.Advisor.Latest()
		if err != nil {
			return err
		}
		return c.JSON(rec)
	})

	app.Get("/forecast", func(c *fiber.Ctx) error {
		var q forecastQuery
		if err := q.bind(c); err != nil {
			return err
		}

		batch, err := deps.Advisor.Upcoming(c.UserContext(), time.Duration(q.Hours)*time.Hour)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"fetched_at": batch.FetchedAt,
			"records":    batch.Records,
		})
	})

	app.Get("/state", func(c *fiber.Ctx) error {
		return c.JSON(deps.State.Snapshot())
	})

	app.Post("/state", func(c *fiber.Ctx) error {
		var partial map[string]json.RawMessage
		if err := json.Unmarshal(c.Body(), &partial); err != nil || partial == nil {
			return validationError("Le corps de la requête doit être un objet JSON.", err)
		}

		accepted, err := deps.State.Update(partial, livestate.SourceHTTP)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"updated": accepted})
	})

	app.Use("/ws", upgradeOnly)
	app.Get("/ws", websocketHandler(deps))

	if deps.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics))
	}
}

// locationQuery holds the optional coordinates of /get-recommendation.
type locationQuery struct {
	Lat *float64 `validate:"omitempty,gte=-90,lte=90"`
	Lon *float64 `validate:"omitempty,gte=-180,lte=180"`
}

func (q *locationQuery) bind(c *fiber.Ctx) error {
	var err error
	if q.Lat, err = optionalFloat(c, "lat"); err != nil {
		return err
	}
	if q.Lon, err = optionalFloat(c, "lon"); err != nil {
		return err
	}
	if err := validate.Struct(q); err != nil {
		return validationError("Coordonnées hors limites.", err)
	}
	return nil
}

func (q locationQuery) toLocation(def weather.Location) weather.Location {
	loc := def
	if q.Lat != nil {
		loc.Latitude = *q.Lat
	}
	if q.Lon != nil {
		loc.Longitude = *q.Lon
	}
	return loc
}

func optionalFloat(c *fiber.Ctx, key string) (*float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, validationError("Paramètre '"+key+"' invalide.", err)
	}
	return &v, nil
}

// forecastQuery holds the horizon of /forecast. Zero means the default horizon.
type forecastQuery struct {
	Hours int `validate:"gte=0,lte=120"`
}

func (q *forecastQuery) bind(c *fiber.Ctx) error {
	if raw := c.Query("hours"); raw != "" {
		hours, err := strconv.Atoi(raw)
		if err != nil {
			return validationError("Paramètre 'hours' invalide.", err)
		}
		q.Hours = hours
	}
	if err := validate.Struct(q); err != nil {
		return validationError("Le paramètre 'hours' doit être compris entre 0 et 120.", err)
	}
	return nil
}
