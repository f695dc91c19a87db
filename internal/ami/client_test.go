package ami

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakePBX answers actions on the server end of a pipe
type fakePBX struct {
	conn    net.Conn
	handle  func(action Event) []string
	actions chan Event
}

func startFakePBX(t *testing.T, handle func(action Event) []string) (net.Conn, *fakePBX) {
	t.Helper()
	client, server := net.Pipe()
	f := &fakePBX{conn: server, handle: handle, actions: make(chan Event, 16)}
	go f.serve()
	t.Cleanup(func() { server.Close() })
	return client, f
}

func (f *fakePBX) serve() {
	fmt.Fprint(f.conn, "Asterisk Call Manager/5.0.1\r\n")
	p := NewParser(f.conn)
	for {
		action, err := p.Next()
		if err != nil {
			return
		}
		f.actions <- action
		reply := []string{"Response", "Success", "ActionID", action.ActionID()}
		if f.handle != nil {
			if custom := f.handle(action); custom != nil {
				reply = custom
			}
		}
		f.write(reply...)
	}
}

func (f *fakePBX) write(kvs ...string) {
	msg := ""
	for i := 0; i+1 < len(kvs); i += 2 {
		msg += kvs[i] + ": " + kvs[i+1] + "\r\n"
	}
	fmt.Fprint(f.conn, msg+"\r\n")
}

func TestClientLogin(t *testing.T) {
	conn, pbx := startFakePBX(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewClient(ctx, conn, Options{Addr: "pipe", Username: "admin", Secret: "s3cret"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()

	login := <-pbx.actions
	if login.Get("Action") != "Login" {
		t.Errorf("expected Login action, got %q", login.Get("Action"))
	}
	if login.Get("Username") != "admin" || login.Get("Secret") != "s3cret" {
		t.Errorf("unexpected credentials: %v", login.Map())
	}
}

func TestClientLoginRejected(t *testing.T) {
	conn, _ := startFakePBX(t, func(action Event) []string {
		return []string{"Response", "Error", "ActionID", action.ActionID(), "Message", "Authentication failed"}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewClient(ctx, conn, Options{Username: "admin", Secret: "wrong"}, zerolog.Nop())
	if !errors.Is(err, ErrActionFailed) {
		t.Fatalf("expected ErrActionFailed, got %v", err)
	}
}

func TestClientStartRecording(t *testing.T) {
	conn, pbx := startFakePBX(t, func(action Event) []string {
		if action.Get("Action") == "MixMonitor" && action.Get("Channel") == "PJSIP/bad-01" {
			return []string{"Response", "Error", "ActionID", action.ActionID(), "Message", "No such channel"}
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewClient(ctx, conn, Options{Username: "admin", Secret: "x"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
	<-pbx.actions // login

	if err := c.StartRecording(ctx, "PJSIP/1001-01", "/var/spool/rec/a.wav"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mix := <-pbx.actions
	if mix.Get("File") != "/var/spool/rec/a.wav" || mix.Get("Options") != "b" {
		t.Errorf("unexpected MixMonitor fields: %v", mix.Map())
	}

	err = c.StartRecording(ctx, "PJSIP/bad-01", "/tmp/x.wav")
	if !errors.Is(err, ErrActionFailed) {
		t.Errorf("expected ErrActionFailed, got %v", err)
	}
}

func TestClientDeliversEvents(t *testing.T) {
	conn, pbx := startFakePBX(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewClient(ctx, conn, Options{Username: "admin", Secret: "x"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Close()
	<-pbx.actions

	go pbx.write("Event", "Hangup", "Linkedid", "1.1", "Channel", "PJSIP/1001-01", "Cause", "16")

	select {
	case evt := <-c.Events():
		if evt.Type() != "Hangup" {
			t.Errorf("expected Hangup, got %q", evt.Type())
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestClientCloseEndsEvents(t *testing.T) {
	conn, pbx := startFakePBX(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := NewClient(ctx, conn, Options{Username: "admin", Secret: "x"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-pbx.actions
	c.Close()

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("done not closed")
	}
	if _, err := c.Action(ctx, "Ping"); err == nil {
		t.Error("expected error on closed connection")
	}
}
