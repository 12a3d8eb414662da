package core

import (
	"github.com/rs/zerolog"

	"github.com/edvin/llmgate/internal/oidc"
)

// Services bundles every domain service over one shared database handle.
type Services struct {
	Providers    *ProviderService
	Users        *UserService
	Grants       *GrantService
	Auth         *AuthService
	Categories   *CategoryService
	Models       *ModelService
	Tokens       *TokenService
	Reservations *ReservationService
	Containers   *ContainerService
	Access       *AccessService
	Usage        *UsageService
}

// Options carries the cross-cutting wiring Services needs beyond the
// database: the secret-box key, the backend UID arena, the admission
// counter, and the OIDC exchanger.
type Options struct {
	SecretKey   []byte
	UIDStart    int
	UIDEnd      int
	Admitter    Admitter
	Probe       Prober
	Exchanger   oidc.Exchanger
	RedirectURI string
	Logger      zerolog.Logger
}

func NewServices(db DB, opts Options) *Services {
	providers := NewProviderService(db, opts.SecretKey)
	users := NewUserService(db)
	grants := NewGrantService(db)
	auth := NewAuthService(db, providers, users, grants, opts.Exchanger, opts.RedirectURI)
	reservations := NewReservationService(db)
	containers := NewContainerService(db, opts.SecretKey, opts.UIDStart, opts.UIDEnd, opts.Admitter, opts.Probe)

	return &Services{
		Providers:    providers,
		Users:        users,
		Grants:       grants,
		Auth:         auth,
		Categories:   NewCategoryService(db),
		Models:       NewModelService(db),
		Tokens:       NewTokenService(db),
		Reservations: reservations,
		Containers:   containers,
		Access:       NewAccessService(db, auth, reservations, containers, opts.Logger),
		Usage:        NewUsageService(db),
	}
}
