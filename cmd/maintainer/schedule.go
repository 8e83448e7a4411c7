package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ventifact/ventifact/internal/config"
)

// ErrScheduleInvalid is returned when a loaded schedule fails validation.
var ErrScheduleInvalid = errors.New("maintainer: invalid schedule")

// Schedule configures the maintainer's periodic retention and flake-detection
// sweeps. Loaded from a YAML file, grounded on internal/aliasing.Config's
// declarative-config-file pattern, generalized from a flat pattern list to
// the nested per-entity retention horizons this daemon needs. The TEST_RUN_LIFETIME
// and MERGED_PR_LIFETIME env vars (spec.md §6) override test_run_retention
// and pr_retention respectively when set.
//
//	interval: PT1H
//	test_run_retention: P90D
//	pr_retention: P180D
//	flake_watermark: P7D
type Schedule struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	Interval string `yaml:"interval"`
	//nolint:tagliatelle
	TestRunRetention string `yaml:"test_run_retention"`
	//nolint:tagliatelle
	PRRetention string `yaml:"pr_retention"`
	//nolint:tagliatelle
	FlakeWatermark string `yaml:"flake_watermark"`
}

// resolvedSchedule holds the parsed durations derived from a Schedule.
type resolvedSchedule struct {
	interval         time.Duration
	testRunRetention time.Duration
	prRetention      time.Duration
	flakeWatermark   time.Duration
}

const (
	// DefaultSchedulePath is the default location for the maintainer's
	// schedule file, following the dotfile convention of
	// internal/aliasing.DefaultConfigPath.
	DefaultSchedulePath = ".ventifact-maintainer.yaml"

	// SchedulePathEnvVar overrides DefaultSchedulePath.
	SchedulePathEnvVar = "MAINTAINER_SCHEDULE_PATH"

	// TestRunLifetimeEnvVar and PRLifetimeEnvVar are the retention-horizon
	// env vars spec.md §6 documents as the maintainer's external interface.
	// When set, they override test_run_retention/pr_retention from the
	// schedule file, the same env-overrides-file precedence as
	// internal/config.GetEnvStr against a loaded default.
	TestRunLifetimeEnvVar = "TEST_RUN_LIFETIME"
	PRLifetimeEnvVar      = "MERGED_PR_LIFETIME"

	defaultInterval         = "PT1H"
	defaultTestRunRetention = "P90D"
	defaultPRRetention      = "P180D"
	defaultFlakeWatermark   = "P7D"
)

// loadSchedule reads and validates the schedule file at path. A missing file
// is not an error: the daemon falls back to built-in defaults, the same
// graceful-degradation behavior as internal/aliasing.LoadConfig.
func loadSchedule(path string) (Schedule, error) {
	sched := Schedule{
		Interval:         defaultInterval,
		TestRunRetention: defaultTestRunRetention,
		PRRetention:      defaultPRRetention,
		FlakeWatermark:   defaultFlakeWatermark,
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return sched, nil
		}

		return Schedule{}, fmt.Errorf("maintainer: read schedule: %w", err)
	}

	if err := yaml.Unmarshal(data, &sched); err != nil {
		return Schedule{}, fmt.Errorf("%w: %v", ErrScheduleInvalid, err)
	}

	return sched, nil
}

// resolve parses every duration field, falling back to built-in defaults
// for any field left blank. TEST_RUN_LIFETIME and MERGED_PR_LIFETIME, when
// set, take precedence over the schedule file's test_run_retention and
// pr_retention — spec.md §6 names these as the deployer-facing knobs, so a
// value set at the environment must win over whatever the YAML file says.
func (s Schedule) resolve() (resolvedSchedule, error) {
	interval, err := config.ParseISODuration(orDefault(s.Interval, defaultInterval))
	if err != nil {
		return resolvedSchedule{}, fmt.Errorf("%w: interval: %v", ErrScheduleInvalid, err)
	}

	testRunRetention, err := config.GetEnvISODuration(
		TestRunLifetimeEnvVar, orDefault(s.TestRunRetention, defaultTestRunRetention),
	)
	if err != nil {
		return resolvedSchedule{}, fmt.Errorf("%w: test_run_retention: %v", ErrScheduleInvalid, err)
	}

	prRetention, err := config.GetEnvISODuration(
		PRLifetimeEnvVar, orDefault(s.PRRetention, defaultPRRetention),
	)
	if err != nil {
		return resolvedSchedule{}, fmt.Errorf("%w: pr_retention: %v", ErrScheduleInvalid, err)
	}

	flakeWatermark, err := config.ParseISODuration(orDefault(s.FlakeWatermark, defaultFlakeWatermark))
	if err != nil {
		return resolvedSchedule{}, fmt.Errorf("%w: flake_watermark: %v", ErrScheduleInvalid, err)
	}

	if interval <= 0 {
		return resolvedSchedule{}, fmt.Errorf("%w: interval must be positive", ErrScheduleInvalid)
	}

	return resolvedSchedule{
		interval:         interval,
		testRunRetention: testRunRetention,
		prRetention:      prRetention,
		flakeWatermark:   flakeWatermark,
	}, nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}

	return value
}
