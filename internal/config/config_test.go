package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/awardtally/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.StoreDriver, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.LedgerDriver, convey.ShouldEqual, config.LedgerMemory)
			convey.So(cfg.NotifierDriver, convey.ShouldEqual, config.NotifierLog)
			convey.So(cfg.LedgerTimeout(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.RescoreInterval(), convey.ShouldEqual, time.Second)
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 50_000)
			convey.So(cfg.ConflictMaxRetries, convey.ShouldEqual, 5)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cfg := config.New(context.Background())

		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = " " }},
			{"unknown store", func(c *config.Config) { c.StoreDriver = "postgres" }},
			{"sqlite without dir", func(c *config.Config) { c.StoreDriver = config.StoreSQLite; c.SQLiteDir = "" }},
			{"unknown ledger", func(c *config.Config) { c.LedgerDriver = "carrier-pigeon" }},
			{"http ledger without url", func(c *config.Config) { c.LedgerDriver = config.LedgerHTTP }},
			{"zero ledger timeout", func(c *config.Config) { c.LedgerTimeoutMS = 0 }},
			{"unknown notifier", func(c *config.Config) { c.NotifierDriver = "smoke" }},
			{"negative retries", func(c *config.Config) { c.ConflictMaxRetries = -1 }},
			{"negative price", func(c *config.Config) { c.VotePriceAGC = -1 }},
		}

		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				tc.mutate(cfg)

				convey.Convey("Then validation fails", func() {
					err := cfg.Validate()
					convey.So(err, convey.ShouldNotBeNil)
					convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				})
			})
		}

		convey.Convey("When it uses an http ledger with a url", func() {
			cfg.LedgerDriver = config.LedgerHTTP
			cfg.LedgerURL = "http://ledger.local"

			convey.Convey("Then it is valid", func() {
				convey.So(cfg.Validate(), convey.ShouldBeNil)
			})
		})
	})
}
