package apimiddleware

import (
	"fmt"
	"net/http"

	"github.com/filehaven/filehaven/pkg/fhdb/model"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type GetAccountByAPIKeyFN func(string) (*model.Account, error)

type APIKeyConfig struct {
	Skipper            middleware.Skipper
	Keyname            string
	GetAccountByAPIKey GetAccountByAPIKeyFN
}

// APIKeyAuth authenticates requests by apikey in a header or query param
// and stashes the account on the context under "Account".
func APIKeyAuth(config APIKeyConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Skipper != nil && config.Skipper(c) {
				return next(c)
			}

			value, err := getAPIKeyFromRequest(config.Keyname, c)
			if err != nil {
				return echo.NewHTTPError(http.StatusBadRequest, err.Error())
			}

			account, err := config.GetAccountByAPIKey(value)
			switch {
			case err != nil:
				return echo.ErrUnauthorized
			case account == nil:
				return echo.ErrUnauthorized
			default:
				c.Set("Account", *account)
				return next(c)
			}
		}
	}
}

func getAPIKeyFromRequest(key string, c echo.Context) (string, error) {
	if value, err := keyFromHeader(key, c); err == nil {
		return value, nil
	}

	if value, err := keyFromQuery(key, c); err == nil {
		return value, nil
	}

	return "", fmt.Errorf("no apikey '%s' as query param or header", key)
}

func keyFromHeader(key string, c echo.Context) (string, error) {
	value := c.Request().Header.Get(key)
	if value == "" {
		return "", fmt.Errorf("no apikey '%s' as header", key)
	}
	return value, nil
}

func keyFromQuery(key string, c echo.Context) (string, error) {
	value := c.QueryParam(key)
	if value == "" {
		return "", fmt.Errorf("no apikey '%s' as query param", key)
	}
	return value, nil
}
