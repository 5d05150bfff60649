//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/suite"

	"capcall/internal/events"
	id "capcall/pkg/domain"
	"capcall/pkg/testutil/containers"
)

type RedisPublisherSuite struct {
	suite.Suite
	redis     *containers.RedisContainer
	publisher *events.RedisPublisher
}

func TestRedisPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisPublisherSuite))
}

func (s *RedisPublisherSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.publisher = events.NewRedisPublisher(s.redis.Client)
}

func (s *RedisPublisherSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisPublisherSuite) TestEmitAppendsToStream() {
	ctx := context.Background()
	registryID := id.NewRegistryID()
	callID := id.DeriveCallID(registryID, 1_000, 500)
	depositor := id.NewPartyID()

	s.Require().NoError(s.publisher.Emit(ctx, events.Deposit(registryID, callID, depositor, 250)))
	s.Require().NoError(s.publisher.Emit(ctx, events.FullyRaised(registryID, callID)))

	entries, err := s.redis.Client.XRange(ctx, "capcall:events", "-", "+").Result()
	s.Require().NoError(err)
	s.Require().Len(entries, 2)

	s.Equal(string(events.KindDeposit), entries[0].Values["kind"])
	s.Equal(callID.String(), entries[0].Values["capital_call"])

	var event events.Event
	payload, ok := entries[0].Values["payload"].(string)
	s.Require().True(ok)
	s.Require().NoError(json.Unmarshal([]byte(payload), &event))
	s.Equal(uint64(250), event.Amount)
	s.Equal(depositor, event.Depositor)
	s.False(event.Timestamp.IsZero())

	s.Equal(string(events.KindFullyRaised), entries[1].Values["kind"])
}
