package protocol

import (
	"errors"
	"testing"
)

func TestCommandRoundTrip(t *testing.T) {
	t.Parallel()
	data, err := Encode(Command{CommandID: "c1", Command: "whoami", Timeout: 5, Priority: 10})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cmd, ok := f.(Command)
	if !ok {
		t.Fatalf("expected Command, got %T", f)
	}
	if cmd.CommandID != "c1" || cmd.Command != "whoami" || cmd.Timeout != 5 || cmd.Priority != 10 {
		t.Fatalf("round trip mismatch: %+v", cmd)
	}
}

func TestResultKeepsEmptyStreams(t *testing.T) {
	t.Parallel()
	data, err := Encode(Result{CommandID: "c2", Stdout: "remoteshell\n", ExitCode: 0, ExecutionTime: 0.02})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	res := f.(Result)
	if res.Stdout != "remoteshell\n" || res.Stderr != "" || res.ExitCode != 0 {
		t.Fatalf("result mismatch: %+v", res)
	}
}

func TestDecodeZeroExitCode(t *testing.T) {
	t.Parallel()
	// exit_code 0 must survive the omitempty envelope.
	f, err := Decode([]byte(`{"type":"result","command_id":"c3","stdout":"","stderr":"","exit_code":0,"execution_time":0.5}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := f.(Result).ExitCode; got != 0 {
		t.Fatalf("expected exit code 0, got %d", got)
	}
}

func TestDecodeUnknownTypeIsSoft(t *testing.T) {
	t.Parallel()
	_, err := Decode([]byte(`{"type":"transfer","path":"/etc/passwd"}`))
	if !errors.Is(err, ErrUnknownFrame) {
		t.Fatalf("expected ErrUnknownFrame, got %v", err)
	}
}

func TestDecodeMalformedJSON(t *testing.T) {
	t.Parallel()
	if _, err := Decode([]byte(`{"type":`)); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestPingPongRoundTrip(t *testing.T) {
	t.Parallel()
	for _, f := range []Frame{Ping{}, Pong{}} {
		data, err := Encode(f)
		if err != nil {
			t.Fatalf("encode %T: %v", f, err)
		}
		out, err := Decode(data)
		if err != nil {
			t.Fatalf("decode %T: %v", f, err)
		}
		if _, same := out.(Ping); same != (f == Frame(Ping{})) {
			t.Fatalf("ping/pong confusion: sent %T got %T", f, out)
		}
	}
}

func TestWelcomeEchoesPolicy(t *testing.T) {
	t.Parallel()
	in := Welcome{
		AgentID:             "a1",
		MaxLength:           1000,
		AllowListEnabled:    true,
		AllowList:           []string{"ls", "whoami"},
		AllowShellOperators: false,
		MaxTimeoutSeconds:   300,
		PingIntervalSeconds: 30,
	}
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := f.(Welcome)
	if out.AgentID != in.AgentID || !out.AllowListEnabled || out.AllowShellOperators {
		t.Fatalf("welcome mismatch: %+v", out)
	}
	if len(out.AllowList) != 2 || out.AllowList[0] != "ls" {
		t.Fatalf("allow list mismatch: %v", out.AllowList)
	}
}
