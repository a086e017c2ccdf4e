package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/inkfolio/commission-backend/internal/config"
)

// cachedResponse is the serialized form stored in Redis.
type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// captureWriter tees the response body so it can be cached after the
// handler runs, while still streaming to the client.
type captureWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
	limit  int
	over   bool
}

func (cw *captureWriter) WriteHeader(code int) {
	cw.status = code
	cw.ResponseWriter.WriteHeader(code)
}

func (cw *captureWriter) Write(b []byte) (int, error) {
	if !cw.over {
		if cw.buf.Len()+len(b) <= cw.limit {
			cw.buf.Write(b)
		} else {
			cw.over = true
		}
	}
	return cw.ResponseWriter.Write(b)
}

// PurgeCache drops every cached response for a route path, whatever its
// query string.  Called after writes that change what a public endpoint
// serves, so readers never wait out the TTL on stale data.
func PurgeCache(ctx context.Context, cfg config.CacheConfig, rdb *redis.Client, path string) error {
	if !cfg.Enabled || rdb == nil {
		return nil
	}
	iter := rdb.Scan(ctx, 0, cfg.Prefix+":"+path+"?*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}

// ResponseCache caches successful GET responses in Redis for the configured
// TTL.  Applied only to public read endpoints (pricing catalog, gallery);
// anything authenticated or mutating bypasses it entirely.  A nil Redis
// client disables caching.
func ResponseCache(cfg config.CacheConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Method != http.MethodGet {
				return next(c)
			}
			key := cfg.Prefix + ":" + c.Path() + "?" + c.Request().URL.RawQuery
			ctx := c.Request().Context()

			if raw, err := rdb.Get(ctx, key).Bytes(); err == nil {
				var hit cachedResponse
				if json.Unmarshal(raw, &hit) == nil {
					return c.Blob(hit.Status, hit.ContentType, hit.Body)
				}
			}

			cw := &captureWriter{
				ResponseWriter: c.Response().Writer,
				status:         http.StatusOK,
				limit:          cfg.MaxBodyBytes,
			}
			c.Response().Writer = cw
			if err := next(c); err != nil {
				return err
			}
			if cw.status == http.StatusOK && !cw.over {
				entry, err := json.Marshal(cachedResponse{
					Status:      cw.status,
					ContentType: c.Response().Header().Get(echo.HeaderContentType),
					Body:        cw.buf.Bytes(),
				})
				if err == nil {
					if err := rdb.Set(ctx, key, entry, cfg.TTL).Err(); err != nil {
						c.Logger().Warnf("cache: set %s: %v", key, err)
					}
				}
			}
			return nil
		}
	}
}
