package redis

import (
	"ProctorGolang/internal/entity"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrSessionNotFound = errors.New("proctor session not found")

const sessionKeyPrefix = "proctor:session:"

// IRedis is the cross-instance registry of proctoring sessions. Entries expire after the
// configured idle TTL unless touched by incoming frames.
type IRedis interface {
	SaveSession(ctx context.Context, session entity.ProctorSession, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (entity.ProctorSession, error)
	TouchSession(ctx context.Context, id string, seenAt time.Time, ttl time.Duration) error
	DeleteSession(ctx context.Context, id string) error
	Close() error
}

type redisClient struct {
	client *redis.Client
	log    *logrus.Logger
}

func New(log *logrus.Logger) IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	log.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		log.Info("Successfully connected to Redis")
	}

	return NewWithClient(client, log)
}

func NewWithClient(client *redis.Client, log *logrus.Logger) IRedis {
	return &redisClient{client: client, log: log}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *redisClient) SaveSession(ctx context.Context, session entity.ProctorSession, ttl time.Duration) error {
	payload, err := jsoniter.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", session.ID, err)
	}

	r.log.Debug(fmt.Sprintf("Saving session %s with ttl %v", session.ID, ttl))
	if err := r.client.Set(ctx, sessionKey(session.ID), payload, ttl).Err(); err != nil {
		r.log.Error(fmt.Sprintf("Error saving session %s: %v", session.ID, err))
		return err
	}
	return nil
}

func (r *redisClient) GetSession(ctx context.Context, id string) (entity.ProctorSession, error) {
	val, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.log.Debug(fmt.Sprintf("Session %s not found", id))
		return entity.ProctorSession{}, ErrSessionNotFound
	} else if err != nil {
		r.log.Error(fmt.Sprintf("Error getting session %s: %v", id, err))
		return entity.ProctorSession{}, err
	}

	var session entity.ProctorSession
	if err := jsoniter.Unmarshal(val, &session); err != nil {
		return entity.ProctorSession{}, fmt.Errorf("decode session %s: %w", id, err)
	}
	return session, nil
}

func (r *redisClient) TouchSession(ctx context.Context, id string, seenAt time.Time, ttl time.Duration) error {
	session, err := r.GetSession(ctx, id)
	if err != nil {
		return err
	}
	session.LastSeenAt = seenAt
	return r.SaveSession(ctx, session, ttl)
}

func (r *redisClient) DeleteSession(ctx context.Context, id string) error {
	result, err := r.client.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		r.log.Error(fmt.Sprintf("Error deleting session %s: %v", id, err))
		return err
	}

	if result == 0 {
		r.log.Debug(fmt.Sprintf("Session key %s not found for deletion", id))
	}
	return nil
}

func (r *redisClient) Close() error {
	return r.client.Close()
}
