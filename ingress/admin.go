package ingress

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lrstanley/girc"
	"github.com/presbrey/ircgate/mask"
)

// requestValidator implements echo.Validator with the IRC tags registered.
type requestValidator struct {
	validator *validator.Validate
}

func (rv *requestValidator) Validate(i interface{}) error {
	if err := rv.validator.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return echo.NewHTTPError(http.StatusBadRequest, verrs[0].Field()+": "+reason(err))
		}
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

type modeRequest struct {
	Target string   `json:"target" validate:"required,ircchannel|ircnick"`
	Params []string `json:"params"`
}

type modeResponse struct {
	Valid   bool     `json:"valid"`
	Kind    string   `json:"kind,omitempty"`
	Error   string   `json:"error,omitempty"`
	Numeric string   `json:"numeric,omitempty"`
	Reply   []string `json:"reply,omitempty"`
}

type matchRequest struct {
	Pattern string `query:"pattern" json:"pattern" validate:"required"`
	Subject string `query:"subject" json:"subject" validate:"required,ircsource"`
}

type matchResponse struct {
	Pattern string `json:"pattern"`
	Subject string `json:"subject"`
	Match   bool   `json:"match"`
}

// newAdmin builds the admin HTTP surface.
func (s *Server) newAdmin() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &requestValidator{validator: s.validate}

	e.Use(middleware.Recover())
	e.Use(s.metrics.Middleware())

	e.GET("/healthz", s.handleHealth)
	e.GET(s.config.Admin.MetricsPath, echo.WrapHandler(s.metrics.Handler()))
	e.POST("/validate/mode", s.handleValidateMode)
	e.GET("/match", s.handleMatch)
	return e
}

// Admin returns the admin HTTP handler.
func (s *Server) Admin() *echo.Echo {
	return s.admin
}

func (s *Server) handleHealth(c echo.Context) error {
	s.mu.Lock()
	sessions := len(s.sessions)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, map[string]any{
		"status":   "ok",
		"server":   s.config.Server.Name,
		"sessions": sessions,
	})
}

func (s *Server) handleValidateMode(c echo.Context) error {
	var req modeRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	params := append([]string{req.Target}, req.Params...)
	err := checkMode(s.validate, &girc.Event{Command: girc.MODE, Params: params})
	if err == nil {
		return c.JSON(http.StatusOK, modeResponse{Valid: true})
	}
	numeric, replyParams := reply(girc.MODE, err)
	return c.JSON(http.StatusOK, modeResponse{
		Kind:    kind(err),
		Error:   err.Error(),
		Numeric: numeric,
		Reply:   replyParams,
	})
}

func (s *Server) handleMatch(c echo.Context) error {
	var req matchRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	pattern := mask.Normalize(req.Pattern)
	return c.JSON(http.StatusOK, matchResponse{
		Pattern: pattern,
		Subject: req.Subject,
		Match:   mask.Match(pattern, req.Subject),
	})
}
