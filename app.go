// app.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/quickchat/quickcall/internal/call"
	"github.com/quickchat/quickcall/internal/config"
	"github.com/quickchat/quickcall/internal/media"
	qsignal "github.com/quickchat/quickcall/internal/signal"

	"github.com/pion/webrtc/v4"
)

// App runs one interactive calling peer: it wires the media engine, the
// signaling client and the call manager together, prints lifecycle events
// and drives the manager from a line-based prompt.
type App struct {
	userID  string
	cfgPath string
	cfg     config.Config

	engine  *media.Engine
	client  *qsignal.Client
	manager *call.Manager
}

func NewApp(userID, cfgPath string, cfg config.Config) *App {
	return &App{userID: userID, cfgPath: cfgPath, cfg: cfg}
}

func (a *App) Run(ctx context.Context) error {
	engine, err := media.New(media.Options{
		ICEServers: iceServers(a.cfg.ICEServers),
		MaxWidth:   a.cfg.Media.MaxWidth,
		MaxHeight:  a.cfg.Media.MaxHeight,
	})
	if err != nil {
		return fmt.Errorf("media engine: %w", err)
	}
	a.engine = engine

	a.client = qsignal.NewClient(
		a.cfg.Signaling.Server,
		time.Duration(a.cfg.Signaling.DialTimeoutSec)*time.Second,
	)
	a.manager = call.New(a.client, engine, call.Options{
		DefaultConstraints: media.Constraints{
			Audio: a.cfg.Media.Audio,
			Video: a.cfg.Media.Video,
		},
	})
	defer a.manager.Close()

	if err := a.manager.Initialize(a.userID); err != nil {
		return err
	}
	if err := a.manager.Connect(ctx); err != nil {
		return err
	}

	// Config edits take effect for future peer links without a restart.
	stopWatch, err := config.Watch(a.cfgPath, func(cfg config.Config) {
		a.engine.UpdateICEServers(iceServers(cfg.ICEServers))
	})
	if err == nil {
		defer stopWatch()
	}

	events, cancelEvents := a.manager.Subscribe()
	defer cancelEvents()
	go a.printEvents(events)

	return a.repl(ctx)
}

// repl reads commands until quit, EOF or context cancellation.
func (a *App) repl(ctx context.Context) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	fmt.Print("> ")
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := a.handle(ctx, line); quit {
				return nil
			}
			fmt.Print("> ")
		}
	}
}

// handle runs one command line. Returns true on quit.
func (a *App) handle(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "help":
		printCommands()

	case "devices":
		inv, err := a.manager.RefreshDevices()
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		printDevices(inv)

	case "call":
		if len(args) < 1 {
			fmt.Println("usage: call <user-id>")
			return false
		}
		id, err := a.manager.StartCall(ctx, args[0], nil)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			return false
		}
		fmt.Printf("calling %s (%s)\n", args[0], id)

	case "answer":
		id, ok := a.pickCall(args)
		if !ok {
			return false
		}
		if err := a.manager.AnswerCall(ctx, id, nil); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "reject":
		id, ok := a.pickCall(args)
		if !ok {
			return false
		}
		a.manager.RejectCall(id)

	case "end":
		id, ok := a.pickCall(args)
		if !ok {
			return false
		}
		a.manager.EndCall(id)

	case "mute":
		id, ok := a.pickCall(args)
		if !ok {
			return false
		}
		if enabled, ok := a.manager.ToggleMute(id); ok {
			fmt.Printf("microphone %s\n", onOff(enabled))
		} else {
			fmt.Println("nothing to toggle")
		}

	case "video":
		id, ok := a.pickCall(args)
		if !ok {
			return false
		}
		if enabled, ok := a.manager.ToggleVideo(id); ok {
			fmt.Printf("camera %s\n", onOff(enabled))
		} else {
			fmt.Println("nothing to toggle")
		}

	case "screen":
		id, ok := a.pickCall(args)
		if !ok {
			return false
		}
		if err := a.manager.ShareScreen(id); err != nil {
			fmt.Printf("error: %v\n", err)
		}

	case "calls":
		calls := a.manager.Calls()
		if len(calls) == 0 {
			fmt.Println("no calls")
			return false
		}
		for _, c := range calls {
			fmt.Printf("  %s  %-8s %-10s peer=%s\n", c.ID, c.Direction, c.State, c.PeerID)
		}

	case "quit", "exit":
		return true

	default:
		fmt.Printf("unknown command '%s', try 'help'\n", cmd)
	}
	return false
}

// pickCall resolves the call id argument, defaulting to the only call when
// exactly one exists.
func (a *App) pickCall(args []string) (string, bool) {
	if len(args) >= 1 {
		return args[0], true
	}
	calls := a.manager.Calls()
	if len(calls) == 1 {
		return calls[0].ID, true
	}
	if len(calls) == 0 {
		fmt.Println("no calls")
	} else {
		fmt.Println("multiple calls, specify an id (see 'calls')")
	}
	return "", false
}

func (a *App) printEvents(events <-chan call.Event) {
	for ev := range events {
		switch ev.Type {
		case call.EventCallReceived:
			fmt.Printf("\n*** incoming call from %s (%s), 'answer' or 'reject'\n> ", ev.PeerID, ev.CallID)
		case call.EventCallConnected:
			fmt.Printf("\n*** connected to %s\n> ", ev.PeerID)
		case call.EventCallEnded:
			who := "you"
			if ev.EndedByRemote {
				who = ev.PeerID
			}
			if ev.Duration > 0 {
				fmt.Printf("\n*** call with %s ended by %s after %s\n> ", ev.PeerID, who, ev.Duration.Round(time.Second))
			} else {
				fmt.Printf("\n*** call with %s ended by %s\n> ", ev.PeerID, who)
			}
		case call.EventCallRejected:
			fmt.Printf("\n*** call with %s rejected\n> ", ev.PeerID)
		case call.EventRemoteStreamAdded:
			fmt.Printf("\n*** receiving %s from %s\n> ", ev.Remote.Kind(), ev.PeerID)
		case call.EventScreenShareStarted:
			fmt.Printf("\n*** screen sharing started\n> ")
		case call.EventScreenShareEnded:
			if ev.RevertedToCamera {
				fmt.Printf("\n*** screen sharing ended, back to camera\n> ")
			} else {
				fmt.Printf("\n*** screen sharing ended: %v\n> ", ev.Err)
			}
		case call.EventDisconnected:
			fmt.Printf("\n*** signaling connection lost\n> ")
		case call.EventError:
			fmt.Printf("\n*** error: %v\n> ", ev.Err)
		}
	}
}

func printCommands() {
	fmt.Println(`commands:
  devices          List capture devices
  call <user>      Call a user
  answer [id]      Answer an incoming call
  reject [id]      Reject an incoming call
  end [id]         End a call
  mute [id]        Toggle microphone
  video [id]       Toggle camera
  screen [id]      Share the screen
  calls            List calls
  quit             Exit`)
}

func printDevices(inv media.Inventory) {
	section := func(name string, devs []media.DeviceInfo) {
		fmt.Printf("%s:\n", name)
		if len(devs) == 0 {
			fmt.Println("  (none)")
			return
		}
		for _, d := range devs {
			fmt.Printf("  %-20s %s\n", d.ID, d.Label)
		}
	}
	section("audio inputs", inv.AudioInputs)
	section("audio outputs", inv.AudioOutputs)
	section("video inputs", inv.VideoInputs)
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}

// iceServers converts config entries into the form the engine consumes.
func iceServers(servers []config.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	return out
}
