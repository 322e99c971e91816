package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/logging"
)

func sampleLog() ledger.Log {
	return ledger.Log{
		ID:        uuid.New(),
		Contract:  common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3"),
		Topic:     "Deposit",
		Data:      []byte(`{"depositCount":1}`),
		CreatedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestRedisStreamPublisher(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := NewRedisStreamPublisher(client, "", 0)
	lg := sampleLog()
	if err := pub.Publish(context.Background(), lg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	entries, err := client.XRange(context.Background(), DefaultStream, "-", "+").Result()
	if err != nil {
		t.Fatalf("xrange: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	values := entries[0].Values
	if values["topic"] != "Deposit" || values["id"] != lg.ID.String() {
		t.Fatalf("unexpected entry %v", values)
	}
	if values["contract"] != lg.Contract.Hex() {
		t.Fatalf("expected contract %s, got %v", lg.Contract.Hex(), values["contract"])
	}
	if values["data"] != `{"depositCount":1}` {
		t.Fatalf("unexpected data %v", values["data"])
	}
}

func TestEnvelopeKeepsDataAsJSON(t *testing.T) {
	payload, err := json.Marshal(NewEnvelope(sampleLog()))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	data, ok := decoded["data"].(map[string]any)
	if !ok || data["depositCount"] != float64(1) {
		t.Fatalf("expected nested data object, got %v", decoded["data"])
	}

	empty := sampleLog()
	empty.Data = nil
	if got := NewEnvelope(empty).Data; string(got) != "null" {
		t.Fatalf("expected null data, got %s", got)
	}
}

type recordingPublisher struct {
	seen []ledger.Log
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, log ledger.Log) error {
	p.seen = append(p.seen, log)
	return p.err
}

func TestMultiPublishesToAll(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingPublisher{err: boom}
	second := &recordingPublisher{}
	multi := Multi{first, nil, NewLogPublisher(logging.Discard()), second}

	err := multi.Publish(context.Background(), sampleLog())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(first.seen) != 1 || len(second.seen) != 1 {
		t.Fatalf("expected every publisher to receive the log")
	}
}
