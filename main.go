package main

import (
	"flag"
	"log"
	"strings"
	"time"

	"retail-analytics/app"
	"retail-analytics/config"
	"retail-analytics/transactions"
)

func main() {
	report := flag.Bool("report", false, "compute every engine once, write CSV exports to REPORT_DIR and exit")
	countries := flag.String("country", "", "comma separated countries to restrict the report to")
	from := flag.String("from", "", "report start date (YYYY-MM-DD)")
	to := flag.String("to", "", "report end date (YYYY-MM-DD)")
	flag.Parse()

	// Load config from .env file
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("❌ Invalid configuration: %v", err)
	}

	application := app.New(cfg)

	if *report {
		criteria, err := reportCriteria(*countries, *from, *to)
		if err != nil {
			log.Fatalf("❌ %v", err)
		}
		if err := application.Report(criteria); err != nil {
			log.Fatal(err)
		}
		return
	}

	// Create and start app
	if err := application.Start(); err != nil {
		log.Fatal(err)
	}
}

func reportCriteria(countries, from, to string) (transactions.Criteria, error) {
	var c transactions.Criteria
	for _, country := range strings.Split(countries, ",") {
		if country = strings.TrimSpace(country); country != "" {
			c.Countries = append(c.Countries, country)
		}
	}
	if from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			return c, err
		}
		c.From = t
	}
	if to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			return c, err
		}
		c.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	return c, c.Validate()
}
