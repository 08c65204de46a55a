// Command token issues an access token for local testing.
//
//	token -role operator -store store-1 -user op-1
//	token -role customer -user cust-1
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/example/ec-storefront/internal/auth"
	"github.com/example/ec-storefront/internal/config"
	"github.com/example/ec-storefront/internal/domain/order"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	role := flag.String("role", string(order.RoleCustomer), "operator or customer")
	user := flag.String("user", "", "user id")
	storeID := flag.String("store", "", "store id, required for operators")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	if *user == "" {
		logger.Error("-user is required")
		os.Exit(1)
	}

	cfg := &config.Config{JWTSecret: os.Getenv("JWT_SECRET")}
	if err := cfg.ValidateJWTSecret(); err != nil {
		logger.Error("invalid secret", "error", err)
		os.Exit(1)
	}

	token, expires, err := auth.NewJWTService(cfg.JWTSecret, *ttl).GenerateAccessToken(*user, order.Role(*role), *storeID)
	if err != nil {
		logger.Error("failed to issue token", "error", err)
		os.Exit(1)
	}

	logger.Info("token issued", "role", *role, "user", *user, "expires", expires.Format(time.RFC3339))
	fmt.Println(token)
}
