package providers

import (
	"github.com/samber/do/v2"

	"github.com/starwatchapp/starwatch/internal/auth"
	"github.com/starwatchapp/starwatch/internal/config"
	"github.com/starwatchapp/starwatch/internal/logger"
	"github.com/starwatchapp/starwatch/internal/twitch"
)

// AuthKey wraps the symmetric key shared by the credential sealer and surface tokens.
type AuthKey []byte

// ProvideAuthKey loads or generates the key file.
func ProvideAuthKey(i do.Injector) (AuthKey, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	key, err := auth.LoadOrGenerateKey(cfg.Data.BasePath)
	if err != nil {
		return nil, err
	}

	log.Info("Authentication key loaded",
		"surface_token_ttl", cfg.Server.SurfaceTTL,
	)

	return AuthKey(key), nil
}

// ProvideSurfaceTokens provides the PASETO surface token issuer.
func ProvideSurfaceTokens(i do.Injector) (*auth.SurfaceTokens, error) {
	cfg := do.MustInvoke[*config.Config](i)
	key := do.MustInvoke[AuthKey](i)

	return auth.NewSurfaceTokens(key, cfg.Server.SurfaceTTL)
}

// ProvideTwitchClient provides the Helix client.
func ProvideTwitchClient(i do.Injector) (*twitch.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("helix")

	return twitch.New(twitch.Options{
		BaseURL:   cfg.Twitch.APIBaseURL,
		ClientID:  cfg.Twitch.ClientID,
		BatchSize: cfg.Cache.BatchSize,
	}, log.Logger), nil
}

// ProvideTwitchOAuth provides the OAuth endpoint client.
func ProvideTwitchOAuth(i do.Injector) (*twitch.OAuth, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("oauth")

	return twitch.NewOAuth(cfg.Twitch.AuthBaseURL, cfg.Twitch.ClientID, cfg.Twitch.ClientSecret, log.Logger), nil
}

// ProvideAuthService provides the account session service.
func ProvideAuthService(i do.Injector) (*auth.Service, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i).WithComponent("auth")
	key := do.MustInvoke[AuthKey](i)
	local := do.MustInvoke[*LocalScopeHandle](i)
	sseHandle := do.MustInvoke[*SSEManagerHandle](i)
	oauth := do.MustInvoke[*twitch.OAuth](i)
	helix := do.MustInvoke[*twitch.Client](i)

	sealer, err := auth.NewSealer(key)
	if err != nil {
		return nil, err
	}

	return auth.NewService(local.LocalScope, sealer, oauth, helix, sseHandle.Manager, cfg.Twitch.Scopes, log.Logger), nil
}
