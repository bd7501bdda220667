// Copyright 2024 The pscompat Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the environment-sourced configuration for a
// pscompat-based consumer: project and group identity, subscription
// creation/deletion policy, and the tunables of package pscompat.Config.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is parsed from the process environment with env.Parse. Every
// field has a PSCOMPAT_-prefixed variable name. ProjectID, GroupID and
// Topics have no default; every other field has one, and the numeric
// defaults match pscompat.Config.withDefaults.
type Config struct {
	ProjectID string `env:"PSCOMPAT_PROJECT_ID"`
	GroupID   string `env:"PSCOMPAT_GROUP_ID"`
	Topics    []string `env:"PSCOMPAT_TOPICS" envSeparator:","`

	AllowSubscriptionCreation bool `env:"PSCOMPAT_ALLOW_SUBSCRIPTION_CREATION" envDefault:"false"`
	AllowSubscriptionDeletion bool `env:"PSCOMPAT_ALLOW_SUBSCRIPTION_DELETION" envDefault:"false"`

	AutoCommit                  bool          `env:"PSCOMPAT_AUTO_COMMIT" envDefault:"false"`
	AutoCommitInterval          time.Duration `env:"PSCOMPAT_AUTO_COMMIT_INTERVAL" envDefault:"5s"`
	MaxPullRecords              int           `env:"PSCOMPAT_MAX_PULL_RECORDS" envDefault:"500"`
	MaxAckExtensionPeriod       time.Duration `env:"PSCOMPAT_MAX_ACK_EXTENSION_PERIOD" envDefault:"10m"`
	MaxPerRequestChanges        int           `env:"PSCOMPAT_MAX_PER_REQUEST_CHANGES" envDefault:"1000"`
	RetryBackoff                time.Duration `env:"PSCOMPAT_RETRY_BACKOFF" envDefault:"100ms"`
	AckRequestTimeout           time.Duration `env:"PSCOMPAT_ACK_REQUEST_TIMEOUT" envDefault:"60s"`
	CreatedSubscriptionDeadline time.Duration `env:"PSCOMPAT_CREATED_SUBSCRIPTION_DEADLINE" envDefault:"10s"`
}

// Load parses Config from the process environment.
func Load() (Config, error) {
	var c Config
	if err := env.Parse(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Defaults returns a Config populated with the same numeric defaults Load
// applies, for callers that construct configuration programmatically
// instead of from the environment.
func Defaults() Config {
	return Config{
		AutoCommitInterval:          5 * time.Second,
		MaxPullRecords:              500,
		MaxAckExtensionPeriod:       10 * time.Minute,
		MaxPerRequestChanges:        1000,
		RetryBackoff:                100 * time.Millisecond,
		AckRequestTimeout:           60 * time.Second,
		CreatedSubscriptionDeadline: 10 * time.Second,
	}
}
