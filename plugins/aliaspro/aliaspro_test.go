package aliaspro

import (
	"context"
	"reflect"
	"testing"

	"mofkobot/internal/core"
	"mofkobot/internal/transport"
	"mofkobot/pkg/logx"
)

func TestParseAliasArgs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		args     string
		wantName string
		want     Alias
		wantErr  bool
	}{
		{
			name:     "commands only",
			args:     "morning ping, status, uptime",
			wantName: "morning",
			want:     Alias{Commands: []string{"ping", "status", "uptime"}},
		},
		{
			name:     "fixed value after last command",
			args:     "g search google, web запрос по умолчанию",
			wantName: "g",
			want: Alias{
				Commands: []string{"search google", "web"},
				Value:    "запрос по умолчанию",
			},
		},
		{
			name:     "two commands no value",
			args:     "x first, second",
			wantName: "x",
			want:     Alias{Commands: []string{"first", "second"}},
		},
		{name: "no commands", args: "lonely", wantErr: true},
		{name: "no comma", args: "name single", wantErr: true},
		{name: "empty", args: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, got, err := parseAliasArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseAliasArgs(%q) = %q %+v, want error", tt.args, name, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseAliasArgs(%q): %v", tt.args, err)
			}
			if name != tt.wantName || !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("parseAliasArgs(%q) = %q %+v, want %q %+v", tt.args, name, got, tt.wantName, tt.want)
			}
		})
	}
}

type recordingDispatcher struct {
	texts []string
	err   error
}

func (d *recordingDispatcher) DispatchText(_ context.Context, _ *transport.Message, text string) error {
	d.texts = append(d.texts, text)
	return d.err
}

func newTestPlugin(disp core.Dispatcher) *Plugin {
	p := New()
	p.deps = core.Deps{Disp: disp, Prefix: "."}
	p.log = logx.Nop()
	return p
}

func TestOnMessageFanOut(t *testing.T) {
	t.Parallel()

	disp := &recordingDispatcher{}
	p := newTestPlugin(disp)
	p.aliases["morning"] = Alias{Commands: []string{"ping", "status"}}

	msg := &transport.Message{ChatID: 1, Text: ".morning"}
	handled, err := p.OnMessage(context.Background(), msg)
	if err != nil {
		t.Fatalf("OnMessage: %v", err)
	}
	if !handled {
		t.Fatal("trigger not handled")
	}
	want := []string{".ping", ".status"}
	if !reflect.DeepEqual(disp.texts, want) {
		t.Fatalf("dispatched %v, want %v", disp.texts, want)
	}
}

func TestOnMessageAppendsValueAndQuery(t *testing.T) {
	t.Parallel()

	disp := &recordingDispatcher{}
	p := newTestPlugin(disp)
	p.aliases["g"] = Alias{Commands: []string{"search"}, Value: "site:example.com"}

	msg := &transport.Message{ChatID: 1, Text: ".g golang generics"}
	handled, err := p.OnMessage(context.Background(), msg)
	if err != nil || !handled {
		t.Fatalf("OnMessage = %v, %v", handled, err)
	}
	want := []string{".search site:example.com golang generics"}
	if !reflect.DeepEqual(disp.texts, want) {
		t.Fatalf("dispatched %v, want %v", disp.texts, want)
	}
}

func TestOnMessageExactTriggerOnly(t *testing.T) {
	t.Parallel()

	disp := &recordingDispatcher{}
	p := newTestPlugin(disp)
	p.aliases["a"] = Alias{Commands: []string{"ping"}}

	// ".ab" must not match the "a" alias by prefix
	handled, err := p.OnMessage(context.Background(), &transport.Message{ChatID: 1, Text: ".ab"})
	if err != nil {
		t.Fatalf("OnMessage: %v", err)
	}
	if handled || len(disp.texts) != 0 {
		t.Fatalf("prefix match leaked: handled=%v dispatched=%v", handled, disp.texts)
	}
}

func TestOnMessageIgnoresPlainText(t *testing.T) {
	t.Parallel()

	disp := &recordingDispatcher{}
	p := newTestPlugin(disp)
	p.aliases["hi"] = Alias{Commands: []string{"ping"}}

	handled, err := p.OnMessage(context.Background(), &transport.Message{ChatID: 1, Text: "hi there"})
	if err != nil || handled {
		t.Fatalf("plain text consumed: handled=%v err=%v", handled, err)
	}
}
