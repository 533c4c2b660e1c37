package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/gocardless-connect/internal/connect"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	merchantID := flag.String("merchant", os.Getenv("GC_MERCHANT_ID"), "merchant id nested into each request")
	environment := flag.String("env", envOr("GC_ENVIRONMENT", "sandbox"), "sandbox or production")
	flag.Parse()

	creds := connect.Credentials{
		AppID:       strings.TrimSpace(os.Getenv("GC_APP_ID")),
		AppSecret:   strings.TrimSpace(os.Getenv("GC_APP_SECRET")),
		AccessToken: strings.TrimSpace(os.Getenv("GC_ACCESS_TOKEN")),
		MerchantID:  strings.TrimSpace(*merchantID),
	}
	if err := creds.Validate(); err != nil {
		log.Fatalf("credentials: %v", err)
	}
	baseURL, err := connect.BaseURL(*environment, os.Getenv("GC_BASE_URL"))
	if err != nil {
		log.Fatalf("base url: %v", err)
	}

	client := &connect.Client{
		Store:       connect.NewCredentialStore(creds),
		BaseURL:     baseURL,
		RedirectURI: os.Getenv("GC_REDIRECT_URI"),
		CancelURI:   os.Getenv("GC_CANCEL_URI"),
	}
	links := connect.Links{State: uuid.NewString()}

	subscription, err := client.NewSubscriptionURL(connect.SubscriptionParams{
		Amount:         decimal.RequireFromString("10.00"),
		IntervalLength: 1,
		IntervalUnit:   "month",
		Links:          links,
	})
	if err != nil {
		log.Fatalf("subscription url: %v", err)
	}
	preAuth, err := client.NewPreAuthorizationURL(connect.PreAuthorizationParams{
		MaxAmount:      decimal.RequireFromString("20.00"),
		IntervalLength: 1,
		IntervalUnit:   "month",
		Links:          links,
	})
	if err != nil {
		log.Fatalf("pre-authorization url: %v", err)
	}
	bill, err := client.NewBillURL(connect.BillParams{
		Amount: decimal.RequireFromString("20.00"),
		Links:  links,
	})
	if err != nil {
		log.Fatalf("bill url: %v", err)
	}

	fmt.Printf("state:             %s\n", links.State)
	fmt.Printf("subscribe to me:   %s\n", subscription)
	fmt.Printf("pre-auth me:       %s\n", preAuth)
	fmt.Printf("pay me:            %s\n", bill)
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
