package task

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/ONSdigital/dp-search-index-migration/config"
)

func validTestConfig() *config.Config {
	return &config.Config{
		MaxConcurrentMigrations: 1,
		PollInterval:            10 * time.Second,
		PollMaxRetries:          3,
		PollTimeout:             30 * time.Minute,
		RequestsPerSecond:       -1,
		SourceRemoteHost:        "http://source:9200",
		TargetElasticSearchURL:  "http://target:11200",
	}
}

func TestValidateConfig(t *testing.T) {
	Convey("Given a valid configuration", t, func() {
		So(validateConfig(validTestConfig()), ShouldBeNil)
	})

	Convey("Given invalid parameter combinations", t, func() {
		cases := map[string]func(*config.Config){
			"zero poll interval":        func(c *config.Config) { c.PollInterval = 0 },
			"timeout below interval":    func(c *config.Config) { c.PollTimeout = time.Second },
			"negative retries":          func(c *config.Config) { c.PollMaxRetries = -1 },
			"zero concurrency":          func(c *config.Config) { c.MaxConcurrentMigrations = 0 },
			"zero requests per second":  func(c *config.Config) { c.RequestsPerSecond = 0 },
			"throttle below -1":         func(c *config.Config) { c.RequestsPerSecond = -2 },
			"missing target url":        func(c *config.Config) { c.TargetElasticSearchURL = "" },
			"missing source remote url": func(c *config.Config) { c.SourceRemoteHost = "" },
		}

		for name, mutate := range cases {
			Convey("Then validation rejects "+name, func() {
				cfg := validTestConfig()
				mutate(cfg)
				So(validateConfig(cfg), ShouldNotBeNil)
			})
		}
	})
}

func TestLoadDestIndexSettings(t *testing.T) {
	Convey("Given no settings path is configured", t, func() {
		settings, err := loadDestIndexSettings("")
		So(err, ShouldBeNil)
		So(settings, ShouldBeNil)
	})

	Convey("Given a settings file with valid json", t, func() {
		path := filepath.Join(t.TempDir(), "settings.json")
		body := `{"settings":{"index":{"number_of_replicas":1}}}`
		So(os.WriteFile(path, []byte(body), 0o600), ShouldBeNil)

		settings, err := loadDestIndexSettings(path)
		So(err, ShouldBeNil)
		So(string(settings), ShouldEqual, body)
	})

	Convey("Given a settings file that is not json", t, func() {
		path := filepath.Join(t.TempDir(), "settings.json")
		So(os.WriteFile(path, []byte("not json"), 0o600), ShouldBeNil)

		_, err := loadDestIndexSettings(path)
		So(err, ShouldNotBeNil)
	})

	Convey("Given a settings path that does not exist", t, func() {
		_, err := loadDestIndexSettings(filepath.Join(t.TempDir(), "missing.json"))
		So(err, ShouldNotBeNil)
	})
}

func TestDestIndices(t *testing.T) {
	Convey("destIndices returns the destination of every migration in order", t, func() {
		So(destIndices([]config.Migration{
			{Source: "a", Dest: "a2"},
			{Source: "b", Dest: "b2"},
		}), ShouldResemble, []string{"a2", "b2"})
	})
}
