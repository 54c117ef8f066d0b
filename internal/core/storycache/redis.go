// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package storycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/taibuivan/historyatlas/internal/core/atlas"
	"github.com/taibuivan/historyatlas/internal/platform/constants"
)

// RedisTier implements [Tier] with one JSON value per tag.
type RedisTier struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTier creates a Redis-backed [Tier]. Entries expire after ttl.
func NewRedisTier(client *redis.Client, ttl time.Duration) *RedisTier {
	return &RedisTier{client: client, ttl: ttl}
}

// Key returns the Redis key of a tag's story.
func Key(tagID uuid.UUID) string {
	return constants.RedisPrefixStory + tagID.String()
}

/*
Load reads a tag's story.

Returns:
  - *atlas.CachedStory: nil when the key is absent or expired
  - error: connectivity or decoding errors
*/
func (tier *RedisTier) Load(context context.Context, tagID uuid.UUID) (*atlas.CachedStory, error) {
	raw, err := tier.client.Get(context, Key(tagID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis_story_get_failed: %w", err)
	}

	var story atlas.CachedStory
	if err := json.Unmarshal(raw, &story); err != nil {
		return nil, fmt.Errorf("redis_story_decode_failed: %w", err)
	}
	return &story, nil
}

// Store writes a tag's story with the tier's TTL.
func (tier *RedisTier) Store(context context.Context, story *atlas.CachedStory) error {
	raw, err := json.Marshal(story)
	if err != nil {
		return fmt.Errorf("redis_story_encode_failed: %w", err)
	}
	if err := tier.client.Set(context, Key(story.Pointer.StoryID), raw, tier.ttl).Err(); err != nil {
		return fmt.Errorf("redis_story_set_failed: %w", err)
	}
	return nil
}
