package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	userIDKey      = "userID"
	gzipDecodedKey = "gzipDecoded"
)

// RequireUser rejects requests without a valid bearer token and stores the
// caller id in the echo context. With allowQueryToken the token may come
// from the "token" query parameter, as EventSource cannot set headers.
func RequireUser(auth Authenticator, allowQueryToken bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" && allowQueryToken {
				if token := c.QueryParam("token"); token != "" {
					header = bearerPrefix + token
				}
			}

			start := time.Now()
			uid, err := auth.UserIDFromAuthHeader(header)
			m := metricsFrom(c)
			m.ObserveAuth(time.Since(start))
			if err != nil {
				m.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(userIDKey, uid)
			return next(c)
		}
	}
}

func userID(c echo.Context) string {
	id, _ := c.Get(userIDKey).(string)
	return id
}

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers can
// work with plain JSON payloads. Requests with invalid gzip payloads are
// rejected with a 400 response.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	decompress := middleware.Decompress()
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		inner := decompress(func(c echo.Context) error {
			c.Set(gzipDecodedKey, true)
			req := c.Request()
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		})
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}
			// Decompress only matches the exact header value.
			req.Header.Set(echo.HeaderContentEncoding, middleware.GZIPEncoding)
			err := inner(c)
			if err != nil && c.Get(gzipDecodedKey) == nil {
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			return err
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), middleware.GZIPEncoding) {
			return true
		}
	}
	return false
}
