package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"sjsage522/orbscreener/internal/model"
	"sjsage522/orbscreener/logger"

	"github.com/redis/go-redis/v9"
)

// RecordField is the stream entry field holding the base64 encoded JSON record
const RecordField = "b64_record"

// RedisPublisher implements Publisher on a Redis stream
type RedisPublisher struct {
	client          *redis.Client
	stream          string
	streamMaxLength int
	log             *logger.Logger
}

// NewRedisPublisher creates a new Redis publisher
func NewRedisPublisher(addr string, db int, stream string, streamMaxLength int) *RedisPublisher {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})

	return &RedisPublisher{
		client:          client,
		stream:          stream,
		streamMaxLength: streamMaxLength,
		log:             logger.ForPublisher().WithField("stream", stream),
	}
}

// Ping checks the connection
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish appends rec to the stream. The JSON document is base64 encoded so
// consumers get it back byte for byte.
func (p *RedisPublisher) Publish(ctx context.Context, rec model.StoredRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record %d: %w", rec.ID, err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"run_id":    rec.RunID,
			"symbol":    rec.Symbol,
			RecordField: base64.StdEncoding.EncodeToString(payload),
		},
	}
	if p.streamMaxLength > 0 {
		args.MaxLen = int64(p.streamMaxLength)
		args.Approx = true
	}
	id, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("publish record %d: %w", rec.ID, err)
	}
	p.log.Debug().Str("entry", id).Int64("id", rec.ID).Str("symbol", rec.Symbol).Msg("Record published")
	return nil
}

// TrimStreams trims the stream to exactly the configured maximum length
func (p *RedisPublisher) TrimStreams(ctx context.Context) error {
	if p.streamMaxLength <= 0 {
		return nil
	}
	trimmed, err := p.client.XTrimMaxLen(ctx, p.stream, int64(p.streamMaxLength)).Result()
	if err != nil {
		return err
	}
	if trimmed > 0 {
		p.log.Debug().Int64("trimmed", trimmed).Msg("Stream trimmed")
	}
	return nil
}

// Close closes the Redis connection
func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

// DecodeRecord reverses the encoding applied by Publish
func DecodeRecord(values map[string]interface{}) (model.StoredRecord, error) {
	var rec model.StoredRecord
	encoded, ok := values[RecordField].(string)
	if !ok {
		return rec, fmt.Errorf("stream entry has no %s field", RecordField)
	}
	payload, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	if err := json.Unmarshal(payload, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
