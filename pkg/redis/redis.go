package redis

import (
	"ProctorGolang/internal/entity"
	"context"
	"errors"
	"fmt"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"os"
	"strconv"
	"time"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

type IRedis interface {
	SetSnapshot(ctx context.Context, snapshot entity.LiveSnapshot, expiration time.Duration) error
	GetSnapshot(ctx context.Context, sessionID string) (entity.LiveSnapshot, error)
	DeleteSnapshot(ctx context.Context, sessionID string) error
	PublishViolation(ctx context.Context, event entity.ViolationEvent) error
	SubscribeViolations(ctx context.Context, interviewID string) (<-chan entity.ViolationEvent, func() error)
}

type redisClient struct {
	client *redis.Client
	log    *logrus.Logger
}

func SnapshotKey(sessionID string) string {
	return "proctoring:snapshot:" + sessionID
}

func ViolationChannel(interviewID string) string {
	return "proctoring:violations:" + interviewID
}

func New(log *logrus.Logger) IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")
	redisPassword := os.Getenv("REDIS_PASSWORD")

	log.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		log.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client, log: log}
}

func (r *redisClient) SetSnapshot(ctx context.Context, snapshot entity.LiveSnapshot, expiration time.Duration) error {
	payload, err := jsoniter.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := r.client.Set(ctx, SnapshotKey(snapshot.SessionID), payload, expiration).Err(); err != nil {
		r.log.WithFields(logrus.Fields{
			"session_id": snapshot.SessionID,
			"error":      err.Error(),
		}).Error("Error setting live snapshot")
		return err
	}
	return nil
}

func (r *redisClient) GetSnapshot(ctx context.Context, sessionID string) (entity.LiveSnapshot, error) {
	val, err := r.client.Get(ctx, SnapshotKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return entity.LiveSnapshot{}, ErrSnapshotNotFound
	} else if err != nil {
		r.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		}).Error("Error getting live snapshot")
		return entity.LiveSnapshot{}, err
	}

	var snapshot entity.LiveSnapshot
	if err := jsoniter.Unmarshal(val, &snapshot); err != nil {
		return entity.LiveSnapshot{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return snapshot, nil
}

func (r *redisClient) DeleteSnapshot(ctx context.Context, sessionID string) error {
	result, err := r.client.Del(ctx, SnapshotKey(sessionID)).Result()
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"session_id": sessionID,
			"error":      err.Error(),
		}).Error("Error deleting live snapshot")
		return err
	}

	if result == 0 {
		r.log.WithField("session_id", sessionID).Debug("Live snapshot already gone")
	}
	return nil
}

func (r *redisClient) PublishViolation(ctx context.Context, event entity.ViolationEvent) error {
	payload, err := jsoniter.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal violation event: %w", err)
	}

	if err := r.client.Publish(ctx, ViolationChannel(event.InterviewID), payload).Err(); err != nil {
		r.log.WithFields(logrus.Fields{
			"session_id":   event.SessionID,
			"interview_id": event.InterviewID,
			"error":        err.Error(),
		}).Error("Error publishing violation event")
		return err
	}
	return nil
}

// SubscribeViolations streams events published for one interview until ctx is
// done or the returned close func is called. Undecodable messages are dropped.
func (r *redisClient) SubscribeViolations(ctx context.Context, interviewID string) (<-chan entity.ViolationEvent, func() error) {
	sub := r.client.Subscribe(ctx, ViolationChannel(interviewID))
	out := make(chan entity.ViolationEvent)

	go func() {
		defer close(out)
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event entity.ViolationEvent
				if err := jsoniter.UnmarshalFromString(msg.Payload, &event); err != nil {
					r.log.WithFields(logrus.Fields{
						"interview_id": interviewID,
						"error":        err.Error(),
					}).Warn("Dropping malformed violation event")
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, sub.Close
}
