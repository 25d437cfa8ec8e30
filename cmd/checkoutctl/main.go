// Command checkoutctl drives the storefront checkout API from a terminal.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"storefront-checkout/internal/client"
	"storefront-checkout/internal/domain/model"
)

const usage = `usage: checkoutctl <command> [flags]

commands:
  session          -id ID
  create-session   -package ID -cycle CYCLE [-email E -name N -key K]
  attach           -id ID -email E [-name N]
  create-purchase  -package ID -user U -cycle CYCLE -method M -email E -name N [-session S -key K]
  complete         -id ID -payment REF
  cancel           -id ID
  refund           -id ID
  purchase         -id ID
  purchases        -user U

environment:
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage+client.Usage())
		os.Exit(2)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(zerolog.WarnLevel).With().Timestamp().Logger()
	c, err := client.NewFromEnv(client.WithLogger(&logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	out, err := dispatch(ctx, c, os.Args[1], os.Args[2:])
	if err != nil {
		var re *client.RequestError
		if errors.As(err, &re) {
			fmt.Fprintf(os.Stderr, "%s: %s\n", re.Kind, re.Message)
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func dispatch(ctx context.Context, c *client.Client, cmd string, args []string) (any, error) {
	checkout := client.NewCheckoutClient(c)
	purchases := client.NewPurchaseClient(c)

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	id := fs.String("id", "", "session or purchase id")
	pkg := fs.String("package", "", "package id")
	cycle := fs.String("cycle", "", "billing cycle: weekly|monthly|yearly")
	email := fs.String("email", "", "buyer email")
	name := fs.String("name", "", "buyer name")
	user := fs.String("user", "", "user id")
	method := fs.String("method", string(model.PaymentMethodCheckout), "payment method")
	session := fs.String("session", "", "checkout session id")
	payRef := fs.String("payment", "", "provider payment reference")
	key := fs.String("key", "", "Idempotency-Key header value")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	switch cmd {
	case "session":
		s := checkout.SessionOrNil(ctx, *id)
		if s == nil {
			return nil, fmt.Errorf("checkout session %q not found", *id)
		}
		return s, nil
	case "create-session":
		return checkout.CreateSession(ctx, client.CreateSessionInput{
			PackageID:      *pkg,
			BillingCycle:   model.BillingCycle(*cycle),
			BuyerEmail:     *email,
			BuyerName:      *name,
			IdempotencyKey: *key,
		})
	case "attach":
		return checkout.AttachProviderCheckout(ctx, *id, client.BuyerInfo{Email: *email, Name: *name})
	case "create-purchase":
		req := client.CreatePurchaseRequest{
			PackageID:      *pkg,
			UserID:         *user,
			BillingCycle:   model.BillingCycle(*cycle),
			PaymentMethod:  model.PaymentMethod(*method),
			BuyerEmail:     *email,
			BuyerName:      *name,
			IdempotencyKey: *key,
		}
		if *session != "" {
			req.SessionID = session
		}
		return purchases.CreatePurchase(ctx, req)
	case "complete":
		return purchases.CompletePurchase(ctx, *id, *payRef)
	case "cancel":
		return purchases.CancelPurchase(ctx, *id)
	case "refund":
		return purchases.RefundPurchase(ctx, *id)
	case "purchase":
		return purchases.GetPurchase(ctx, *id)
	case "purchases":
		return purchases.GetUserPurchases(ctx, *user)
	default:
		return nil, fmt.Errorf("unknown command %q\n\n%s", cmd, usage)
	}
}
