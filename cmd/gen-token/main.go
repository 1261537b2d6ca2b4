// Command gen-token mints HS256 bearer tokens accepted by the API when it runs
// with AUTH0_TEST_MODE or LOCAL_AUTH_MODE.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

type tokenOptions struct {
	secret   []byte
	audience string
	issuer   string
	ttl      time.Duration
}

func main() {
	var (
		count    = flag.Int("count", 1, "number of tokens to generate")
		prefix   = flag.String("prefix", "local-user", "prefix for generated user IDs when count > 1")
		start    = flag.Int("start", 1, "starting index for generated user IDs when count > 1")
		output   = flag.String("output", "", "file to write generated tokens as a JSON array")
		audience = flag.String("audience", os.Getenv("AUTH0_AUDIENCE"), "aud claim")
		issuer   = flag.String("issuer", "", "iss claim")
		ttl      = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	if *start < 1 {
		log.Fatal("start index must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
	}

	secret, err := secretFromEnv(os.Getenv)
	if err != nil {
		log.Fatal(err)
	}
	opts := tokenOptions{secret: secret, audience: *audience, issuer: *issuer, ttl: *ttl}

	tokens, err := generateTokens(opts, time.Now(), userIDs(*count, *prefix, *start, args))
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

func secretFromEnv(getenv func(string) string) ([]byte, error) {
	for _, key := range []string{"TEST_JWT_SECRET", "LOCAL_AUTH_SHARED_SECRET"} {
		if v := getenv(key); v != "" {
			return []byte(v), nil
		}
	}
	return nil, errors.New("TEST_JWT_SECRET or LOCAL_AUTH_SHARED_SECRET must be set")
}

func userIDs(count int, prefix string, start int, args []string) []string {
	if len(args) > 0 {
		return []string{args[0]}
	}
	if count == 1 {
		return []string{prefix}
	}
	ids := make([]string, count)
	for i := range ids {
		ids[i] = fmt.Sprintf("%s-%d", prefix, start+i)
	}
	return ids
}

func generateTokens(opts tokenOptions, now time.Time, ids []string) ([]string, error) {
	tokens := make([]string, len(ids))
	for i, id := range ids {
		claims := jwt.MapClaims{
			"sub": id,
			"iat": now.Unix(),
			"exp": now.Add(opts.ttl).Unix(),
		}
		if opts.audience != "" {
			claims["aud"] = opts.audience
		}
		if opts.issuer != "" {
			claims["iss"] = opts.issuer
		}
		tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(opts.secret)
		if err != nil {
			return nil, err
		}
		tokens[i] = tok
	}
	return tokens, nil
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
