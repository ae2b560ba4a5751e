package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/openarb/venuewatch/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LivePriceCache implements domain.LivePriceCache using Redis hashes. Each
// observation is stored at key "obs:{instrument}:{venue}" with fields
// "price", "liquidity", "volume", "ts" (Unix nanoseconds), and "seq", so
// out-of-process consumers can read latest prices without subscribing to the
// event stream.
type LivePriceCache struct {
	rdb *redis.Client
}

// NewLivePriceCache creates a LivePriceCache backed by the given Client.
func NewLivePriceCache(c *Client) *LivePriceCache {
	return &LivePriceCache{rdb: c.Underlying()}
}

func obsKey(instrument, venue string) string {
	return "obs:" + instrument + ":" + venue
}

// SetObservation mirrors the latest observation for its (venue, instrument)
// key.
func (lc *LivePriceCache) SetObservation(ctx context.Context, obs domain.PriceObservation) error {
	key := obsKey(obs.Instrument, obs.Venue)
	fields := map[string]interface{}{
		"price":     strconv.FormatFloat(obs.Price, 'f', -1, 64),
		"liquidity": strconv.FormatFloat(obs.Liquidity, 'f', -1, 64),
		"volume":    strconv.FormatFloat(obs.Volume, 'f', -1, 64),
		"ts":        strconv.FormatInt(obs.ObservedAt.UnixNano(), 10),
		"seq":       strconv.FormatUint(obs.Seq, 10),
	}
	if err := lc.rdb.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("redis: set observation %s/%s: %w", obs.Instrument, obs.Venue, err)
	}
	return nil
}

// GetObservation retrieves the mirrored observation for a key. It returns
// domain.ErrNotFound when the key does not exist.
func (lc *LivePriceCache) GetObservation(ctx context.Context, key domain.ObservationKey) (domain.PriceObservation, error) {
	vals, err := lc.rdb.HGetAll(ctx, obsKey(key.Instrument, key.Venue)).Result()
	if err != nil {
		return domain.PriceObservation{}, fmt.Errorf("redis: get observation %s/%s: %w", key.Instrument, key.Venue, err)
	}
	if len(vals) == 0 {
		return domain.PriceObservation{}, domain.ErrNotFound
	}

	obs := domain.PriceObservation{
		Venue:      key.Venue,
		Instrument: key.Instrument,
	}
	if obs.Price, err = strconv.ParseFloat(vals["price"], 64); err != nil {
		return domain.PriceObservation{}, fmt.Errorf("redis: parse price %s/%s: %w", key.Instrument, key.Venue, err)
	}
	if v, ok := vals["liquidity"]; ok {
		obs.Liquidity, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["volume"]; ok {
		obs.Volume, _ = strconv.ParseFloat(v, 64)
	}
	if v, ok := vals["ts"]; ok {
		if nanos, err := strconv.ParseInt(v, 10, 64); err == nil {
			obs.ObservedAt = time.Unix(0, nanos)
		}
	}
	if v, ok := vals["seq"]; ok {
		obs.Seq, _ = strconv.ParseUint(v, 10, 64)
	}
	return obs, nil
}

// GetInstrumentPrices retrieves the mirrored prices of one instrument across
// venues using a pipeline. Venues without a mirrored entry are silently
// omitted.
func (lc *LivePriceCache) GetInstrumentPrices(ctx context.Context, instrument string, venues []string) (map[string]float64, error) {
	if len(venues) == 0 {
		return map[string]float64{}, nil
	}

	pipe := lc.rdb.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(venues))
	for _, venue := range venues {
		cmds[venue] = pipe.HGet(ctx, obsKey(instrument, venue), "price")
	}

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: instrument prices pipeline: %w", err)
	}

	result := make(map[string]float64, len(venues))
	for venue, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			continue
		}
		price, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		result[venue] = price
	}
	return result, nil
}

// Compile-time interface check.
var _ domain.LivePriceCache = (*LivePriceCache)(nil)
