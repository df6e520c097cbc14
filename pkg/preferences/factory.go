package preferences

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ekaya-inc/ekaya-grounding/pkg/database"
	"github.com/ekaya-inc/ekaya-grounding/pkg/repositories"
)

// Deps carries the connections a backend may need. Unused fields may be nil.
type Deps struct {
	DB          *database.DB
	Redis       redis.Cmdable
	RedisPrefix string
}

// NewStore builds the store for backend.
func NewStore(backend string, deps Deps) (Store, error) {
	switch backend {
	case BackendMemory, "":
		return NewMemoryStore(), nil
	case BackendPostgres:
		if deps.DB == nil {
			return nil, fmt.Errorf("preferences backend %q requires a database connection", backend)
		}
		return NewPostgresStore(repositories.NewUserPreferenceRepository(deps.DB)), nil
	case BackendRedis:
		if deps.Redis == nil {
			return nil, fmt.Errorf("preferences backend %q requires a redis client", backend)
		}
		return NewRedisStore(deps.Redis, deps.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("unknown preferences backend %q", backend)
	}
}
