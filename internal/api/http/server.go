package httpapi

import (
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the Fiber app with error rendering, panic recovery, access
// logging, CORS and all routes.
func NewApp(deps Deps, corsOrigins []string) *fiber.App {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	app := fiber.New(fiber.Config{
		AppName:               "irrigation-assistant",
		DisableStartupMessage: true,
		ErrorHandler:          ErrorHandler(deps.Logger),
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	if origins, allowNull := splitOrigins(corsOrigins); len(origins) > 0 {
		cfg := cors.Config{
			AllowOrigins: strings.Join(origins, ","),
			AllowMethods: "GET,POST,OPTIONS",
			AllowHeaders: "Origin, Content-Type, Accept",
		}
		if allowNull {
			// Pages opened from file:// send Origin: null, which AllowOrigins rejects as malformed.
			cfg.AllowOriginsFunc = func(origin string) bool { return origin == "null" }
		}
		app.Use(cors.New(cfg))
	}

	RegisterRoutes(app, deps)
	return app
}

func splitOrigins(configured []string) ([]string, bool) {
	var origins []string
	allowNull := false
	for _, o := range configured {
		switch o = strings.TrimSpace(o); o {
		case "":
		case "null":
			allowNull = true
		default:
			origins = append(origins, o)
		}
	}
	return origins, allowNull
}
