package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
)

func TestRedisProviderGetHitAndMiss(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	defer db.Close()

	p, err := New(Config{Client: db, Prefix: "tc:"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	mock.ExpectGet("tc:list:abc").SetVal("payload")
	mock.ExpectGet("tc:list:missing").RedisNil()

	b, ok, err := p.Get(ctx, "list:abc")
	if err != nil || !ok || string(b) != "payload" {
		t.Fatalf("hit: b=%q ok=%v err=%v", b, ok, err)
	}
	b, ok, err = p.Get(ctx, "list:missing")
	if err != nil || ok || b != nil {
		t.Fatalf("miss: b=%q ok=%v err=%v", b, ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisProviderSetUsesTTL(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	defer db.Close()

	p, _ := New(Config{Client: db, Prefix: "tc:"})
	mock.ExpectSet("tc:export", []byte("x"), 600*time.Second).SetVal("OK")

	ok, err := p.Set(ctx, "export", []byte("x"), 1, 600*time.Second)
	if err != nil || !ok {
		t.Fatalf("Set: ok=%v err=%v", ok, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestRedisProviderTransportError(t *testing.T) {
	ctx := context.Background()
	db, mock := redismock.NewClientMock()
	defer db.Close()

	p, _ := New(Config{Client: db})
	boom := errors.New("connection refused")
	mock.ExpectGet("k").SetErr(boom)
	mock.ExpectDel("k").SetErr(boom)

	if _, ok, err := p.Get(ctx, "k"); !errors.Is(err, boom) || ok {
		t.Fatalf("expected transport error, ok=%v err=%v", ok, err)
	}
	if err := p.Del(ctx, "k"); !errors.Is(err, boom) {
		t.Fatalf("expected del error, got %v", err)
	}
}

func TestRedisProviderNilClient(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, ErrNilClient) {
		t.Fatalf("expected ErrNilClient, got %v", err)
	}
}
