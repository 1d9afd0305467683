package httpapi

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"actionchat/internal/specstore"
)

type Deps struct {
	DB            *pgxpool.Pool
	Log           zerolog.Logger
	SessionSecret string

	AllowedOrigins     []string
	RateLimitPerMinute int

	// Optional: spec document storage. When nil, the source spec upload and
	// regeneration endpoints report the feature as unconfigured.
	Specs          specstore.Store
	UploadIssuer   specstore.CredentialIssuer
	UploadDuration int
}
