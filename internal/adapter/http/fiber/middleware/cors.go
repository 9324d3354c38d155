package middleware

import (
	"github.com/gofiber/fiber/v2"
	fibercors "github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS allows the dashboard origin set; defaults stay permissive for
// development.
func CORS() fiber.Handler {
	return fibercors.New(fibercors.Config{
		AllowOrigins:  "*",
		AllowMethods:  "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:  "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders: "Content-Length,Content-Range",
		MaxAge:        86400,
	})
}
