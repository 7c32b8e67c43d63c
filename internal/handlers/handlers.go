// Package handlers exposes the HTTP JSON API.
package handlers

import (
	"context"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/serenityskeys/backend/internal/auth"
	"github.com/serenityskeys/backend/internal/config"
	"github.com/serenityskeys/backend/internal/payments"
	"github.com/serenityskeys/backend/internal/services"
)

// Pinger reports whether an optional backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	svc      *services.Service
	cfg      config.Config
	issuer   *auth.Issuer
	db       *gorm.DB
	payments payments.Gateway
	redis    Pinger
	log      *zap.Logger
	validate *validator.Validate
}

type Deps struct {
	Service  *services.Service
	Config   config.Config
	Issuer   *auth.Issuer
	DB       *gorm.DB
	Payments payments.Gateway
	Redis    Pinger // nil when no redis is configured
	Log      *zap.Logger
}

func New(d Deps) *Handlers {
	return &Handlers{
		svc:      d.Service,
		cfg:      d.Config,
		issuer:   d.Issuer,
		db:       d.DB,
		payments: d.Payments,
		redis:    d.Redis,
		log:      d.Log,
		validate: newValidator(),
	}
}

// newValidator reports field errors under their json names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
