package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/canvas-presence/internal/domain"
)

const securePrefix = "__Secure-"

type sessionRecord struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Image  string `json:"image"`
}

// RedisResolver exchanges the session cookie for the identity the main
// application stored under <prefix><token>.
type RedisResolver struct {
	client     redis.UniversalClient
	cookieName string
	prefix     string
	timeout    time.Duration
}

func NewRedisResolver(client redis.UniversalClient, cookieName, prefix string) *RedisResolver {
	return &RedisResolver{client: client, cookieName: cookieName, prefix: prefix, timeout: 2 * time.Second}
}

func (r *RedisResolver) Resolve(req *http.Request) (domain.User, bool) {
	token := r.token(req)
	if token == "" {
		return domain.User{}, false
	}
	ctx, cancel := context.WithTimeout(req.Context(), r.timeout)
	defer cancel()

	raw, err := r.client.Get(ctx, r.prefix+token).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Warn().Err(err).Str("module", "identity.redis").Msg("session lookup failed")
		}
		return domain.User{}, false
	}
	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		log.Warn().Err(err).Str("module", "identity.redis").Msg("bad session record")
		return domain.User{}, false
	}
	u, err := domain.NewUser(rec.UserID, rec.Name, rec.Image)
	if err != nil {
		log.Debug().Err(err).Str("module", "identity.redis").Msg("session without usable user")
		return domain.User{}, false
	}
	return u, true
}

// token prefers the __Secure- cookie when the request arrived over https.
func (r *RedisResolver) token(req *http.Request) string {
	names := []string{r.cookieName}
	if isSecure(req) {
		names = []string{securePrefix + r.cookieName, r.cookieName}
	}
	for _, name := range names {
		if c, err := req.Cookie(name); err == nil && c.Value != "" {
			return c.Value
		}
	}
	return ""
}

func isSecure(req *http.Request) bool {
	if req.TLS != nil {
		return true
	}
	proto, _, _ := strings.Cut(req.Header.Get("X-Forwarded-Proto"), ",")
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}
