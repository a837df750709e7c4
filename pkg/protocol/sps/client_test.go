package sps

import (
	"context"
	"math/rand"
	"net"
	"testing"

	"go.uber.org/goleak"

	"github.com/gitrdm/symconcolic/pkg/execctx"
	"github.com/gitrdm/symconcolic/pkg/protocol/bencode"
	"github.com/gitrdm/symconcolic/pkg/smt"
	"github.com/gitrdm/symconcolic/pkg/trace"
)

// fakeServer accepts one connection, reads one SPS frame, and replies with
// a single-field concrete descriptor naming "reply".
func fakeServer(t *testing.T, ln net.Listener, tag int64) {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	if _, err := bencode.Decode(conn); err != nil {
		t.Errorf("server: decode request: %v", err)
		return
	}

	if tag == tagRst {
		return
	}

	record := []bencode.Value{[]byte("reply"), int64(8), []bencode.Value{int64(7)}}
	if err := bencode.Encode(conn, []bencode.Value{record}); err != nil {
		t.Errorf("server: encode response: %v", err)
	}
}

func TestClientSendMessage(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go fakeServer(t, ln, tagData)

	backend := smt.NewEnumBackend()
	solver := smt.New(backend)
	ectx := execctx.New(rand.New(rand.NewSource(1)))
	tr := trace.New(solver, rand.New(rand.NewSource(1)))

	client, err := Dial(context.Background(), ln.Addr().String(), ectx, tr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.SendMessage([]byte("packet")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if client.RemainingBytes() != 1 {
		t.Fatalf("RemainingBytes = %d, want 1", client.RemainingBytes())
	}
	v, ok := client.NextByte()
	if !ok {
		t.Fatalf("NextByte: expected a byte")
	}
	if got := v.Concrete.Value.Uint64(); got != 7 {
		t.Errorf("NextByte value = %d, want 7", got)
	}
	if !client.Empty() {
		t.Errorf("Empty() = false after consuming the only byte")
	}
}

func TestClientSendMessageBeforeDrainingFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go fakeServer(t, ln, tagData)

	backend := smt.NewEnumBackend()
	solver := smt.New(backend)
	ectx := execctx.New(rand.New(rand.NewSource(1)))
	tr := trace.New(solver, rand.New(rand.NewSource(1)))

	client, err := Dial(context.Background(), ln.Addr().String(), ectx, tr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.SendMessage([]byte("packet")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if err := client.SendMessage([]byte("packet2")); err == nil {
		t.Errorf("SendMessage before draining the previous response: expected an error")
	}
}

func TestClientReset(t *testing.T) {
	defer goleak.VerifyNone(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	go fakeServer(t, ln, tagRst)

	backend := smt.NewEnumBackend()
	solver := smt.New(backend)
	ectx := execctx.New(rand.New(rand.NewSource(1)))
	tr := trace.New(solver, rand.New(rand.NewSource(1)))

	client, err := Dial(context.Background(), ln.Addr().String(), ectx, tr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	if err := client.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !client.Empty() {
		t.Errorf("Empty() = false after Reset")
	}
}
