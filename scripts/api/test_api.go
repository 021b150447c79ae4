// Minimal end-to-end smoke test for the status API of a running bot.
//
// Run from repo root:
//
//	go run ./scripts/api/test_api.go
//
// Environment:
//
//	API_URL    – base URL (default http://localhost:8080)
//	JWT_SECRET – api.jwt_secret of the bot, enables the protected checks
//	REDIS_URL  – when set, the tail of the event stream is printed
//	STREAM     – event stream name (default oooz.events)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/oooz/oooz-bot/src/api"
)

var (
	baseURL   = getenv("API_URL", "http://localhost:8080")
	jwtSecret = os.Getenv("JWT_SECRET")
	redisURL  = os.Getenv("REDIS_URL")
	stream    = getenv("STREAM", "oooz.events")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	var health struct{ Status string }
	doReq("GET", "/healthz", "", &health, http.StatusOK)
	if health.Status != "ok" {
		log.Fatalf("healthz: status %q", health.Status)
	}

	var list struct {
		Sugestie []struct {
			ID     string
			Status string
		}
	}
	doReq("GET", "/v1/sugestie", "", &list, http.StatusOK)
	fmt.Printf("%d sugestie\n", len(list.Sugestie))
	if len(list.Sugestie) > 0 {
		doReq("GET", "/v1/sugestie/"+list.Sugestie[0].ID, "", nil, http.StatusOK)
	}
	doReq("GET", "/v1/sugestie/does-not-exist", "", nil, http.StatusNotFound)

	if jwtSecret != "" {
		doReq("GET", "/v1/warns/1", "", nil, http.StatusUnauthorized)
		token, err := api.IssueToken("smoke-test", []byte(jwtSecret), time.Minute, time.Now())
		if err != nil {
			log.Fatalf("token: %v", err)
		}
		var warns struct{ Active int }
		doReq("GET", "/v1/warns/1", token, &warns, http.StatusOK)
		fmt.Printf("user 1 has %d active warnings\n", warns.Active)
	}

	if redisURL != "" {
		tailEvents(context.Background())
	}

	fmt.Println("✓ all endpoints passed")
}

func tailEvents(ctx context.Context) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("redis url: %v", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()
	msgs, err := rdb.XRevRangeN(ctx, stream, "+", "-", 5).Result()
	if err != nil {
		log.Fatalf("redis xrevrange: %v", err)
	}
	for _, m := range msgs {
		fmt.Printf("event %s %v\n", m.ID, m.Values)
	}
}

func doReq(method, path, token string, out any, want int) {
	req, err := http.NewRequest(method, baseURL+path, nil)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	if res.StatusCode != want {
		log.Fatalf("%s %s: want %d got %d", method, path, want, res.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			log.Fatalf("%s %s decode: %v", method, path, err)
		}
	}
}
