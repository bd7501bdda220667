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

// Command pscompat-demo wires package compat to real GCP Pub/Sub
// credentials and prints whatever it polls, for manual exercise of the
// full stack (dial, subscribe, poll, commit).
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/googleapis/pscompat/compat"
	"github.com/googleapis/pscompat/internal/config"
	"github.com/googleapis/pscompat/pscompat"
	"github.com/googleapis/pscompat/pscompat/gcppubsub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.ProjectID == "" || cfg.GroupID == "" || len(cfg.Topics) == 0 {
		log.Fatal("PSCOMPAT_PROJECT_ID, PSCOMPAT_GROUP_ID, and PSCOMPAT_TOPICS must be set")
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("build logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	conn, cleanup, err := gcppubsub.Dial(ctx)
	if err != nil {
		logger.Fatal("dial", zap.Error(err))
	}
	defer cleanup()

	client, err := gcppubsub.SubscriberClient(ctx, conn)
	if err != nil {
		logger.Fatal("subscriber client", zap.Error(err))
	}
	defer client.Close()

	maker := &gcppubsub.Maker{Client: client, ProjectID: cfg.ProjectID, Log: logger}

	consumer := compat.NewConsumer(compat.Config{
		ProjectID:                 cfg.ProjectID,
		GroupID:                   cfg.GroupID,
		AllowSubscriptionCreation: cfg.AllowSubscriptionCreation,
		AllowSubscriptionDeletion: cfg.AllowSubscriptionDeletion,
		Subscriber: pscompat.Config{
			AutoCommit:                  cfg.AutoCommit,
			AutoCommitInterval:          cfg.AutoCommitInterval,
			MaxPullRecords:              cfg.MaxPullRecords,
			MaxAckExtensionPeriod:       cfg.MaxAckExtensionPeriod,
			MaxPerRequestChanges:        cfg.MaxPerRequestChanges,
			RetryBackoff:                cfg.RetryBackoff,
			AckRequestTimeout:           cfg.AckRequestTimeout,
			CreatedSubscriptionDeadline: cfg.CreatedSubscriptionDeadline,
			AllowSubscriptionCreation:   cfg.AllowSubscriptionCreation,
		},
	}, maker, logger)
	defer consumer.Close()

	if err := consumer.Subscribe(cfg.Topics); err != nil {
		logger.Fatal("subscribe", zap.Error(err))
	}

	for {
		recs, err := consumer.Poll(5 * time.Second)
		if err != nil {
			logger.Error("poll", zap.Error(err))
			continue
		}
		for _, r := range recs {
			fmt.Printf("topic=%s offset=%d key=%q body=%q\n", r.Topic, r.Offset, r.Key, r.Body)
		}
		if len(recs) > 0 {
			if err := consumer.Commit(false); err != nil {
				logger.Error("commit", zap.Error(err))
			}
		}
	}
}
