package connector

import (
	"testing"
	"time"

	"github.com/outpost-iot/btgateway/internal/gwmessage"
)

func TestRouter_Accept(t *testing.T) {
	r := newRouter(NewOutputQueue())

	cases := []struct {
		kind CommandKind
		want bool
	}{
		{CommandNewDeviceAnnouncement, true},
		{CommandServerDeviceList, true},
		{CommandLastValue, true},
		{CommandKind(99), false},
	}
	for _, c := range cases {
		if got := r.Accept(Command{Kind: c.kind}); got != c.want {
			t.Errorf("Accept(kind=%d) = %v, want %v", c.kind, got, c.want)
		}
	}
}

func TestRouter_HandleEnqueuesAndWaitsForAnswer(t *testing.T) {
	queue := NewOutputQueue()
	r := newRouter(queue)

	result := make(chan gwmessage.Envelope, 1)
	resultErr := make(chan error, 1)
	go func() {
		env, err := r.Handle(Command{
			Kind:    CommandLastValue,
			Payload: gwmessage.LastValueRequest{DeviceID: "dev1", ModuleID: "mod1"},
		})
		result <- env
		resultErr <- err
	}()

	ctx, ok := queue.Dequeue(time.Second)
	if !ok {
		t.Fatal("Router.Handle did not enqueue a context")
	}
	if ctx.Message.Type != gwmessage.TypeLastValueRequest {
		t.Fatalf("Message.Type = %v, want TypeLastValueRequest", ctx.Message.Type)
	}

	var req gwmessage.LastValueRequest
	if err := gwmessage.DecodePayload(ctx.Message.Payload, &req); err != nil {
		t.Fatalf("DecodePayload() error = %v", err)
	}
	if req.DeviceID != "dev1" || req.ModuleID != "mod1" {
		t.Fatalf("decoded request = %+v, want dev1/mod1", req)
	}

	payload, _ := gwmessage.EncodePayload(gwmessage.LastValueResponse{ModuleID: "mod1", Value: 21.5})
	ctx.answer(gwmessage.Envelope{ID: ctx.ID, Type: gwmessage.TypeLastValueResponse, Payload: payload})

	if err := <-resultErr; err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	env := <-result
	var resp gwmessage.LastValueResponse
	if err := gwmessage.DecodePayload(env.Payload, &resp); err != nil {
		t.Fatalf("DecodePayload(response) error = %v", err)
	}
	if resp.Value != 21.5 {
		t.Fatalf("resp.Value = %v, want 21.5", resp.Value)
	}
}

func TestRouter_HandlePropagatesFailure(t *testing.T) {
	queue := NewOutputQueue()
	r := newRouter(queue)

	done := make(chan error, 1)
	go func() {
		_, err := r.Handle(Command{Kind: CommandServerDeviceList, Payload: gwmessage.ServerDeviceListRequest{}})
		done <- err
	}()

	ctx, ok := queue.Dequeue(time.Second)
	if !ok {
		t.Fatal("Router.Handle did not enqueue a context")
	}
	ctx.fail(ErrStopped)

	if err := <-done; err != ErrStopped {
		t.Fatalf("Handle() error = %v, want ErrStopped", err)
	}
}
