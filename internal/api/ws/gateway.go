package ws

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/ReynoldsProductions/SpotifyHeadless/internal/app/bridge"
	"github.com/ReynoldsProductions/SpotifyHeadless/internal/domain/player"
)

// Event types on the wire.
const (
	EventVersion        = "version"
	EventControlEnabled = "control_enabled"
	EventStateChange    = "state_change"
	EventRamping        = "ramping"
	EventCommandError   = "command_error"
)

// Envelope is the wire format for outbound frames.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// commandFrame is the wire format for inbound command frames.
type commandFrame struct {
	Type   string         `json:"type"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args,omitempty"`
}

// Gateway fans bridge events out to WebSocket subscribers and routes
// inbound command frames to the dispatcher. It implements
// bridge.Broadcaster.
type Gateway struct {
	hub    *Hub
	bridge *bridge.Bridge
}

// NewGateway constructs a gateway. Attach the bridge before serving
// connections; the hub can be handed to bridge.New first.
func NewGateway() *Gateway {
	return &Gateway{hub: NewHub()}
}

// Attach binds the bridge used for hello frames and command dispatch.
func (g *Gateway) Attach(b *bridge.Bridge) { g.bridge = b }

// Run starts the hub event loop. Blocks until ctx is canceled.
func (g *Gateway) Run(ctx context.Context) { g.hub.Run(ctx) }

// BroadcastState publishes a state-change event to all subscribers.
func (g *Gateway) BroadcastState(payload player.StateChangePayload) {
	g.hub.BroadcastBytes(marshalEnvelope(EventStateChange, payload))
}

// BroadcastRamping publishes a ramping-status transition.
func (g *Gateway) BroadcastRamping(active bool) {
	g.hub.BroadcastBytes(marshalEnvelope(EventRamping, active))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Register registers the WebSocket handler on the provided mux.
func (g *Gateway) Register(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, g.handleWS)
}

// handleWS upgrades the connection and greets the new subscriber with
// the current control status, version, retained state and ramping flag,
// so it never waits for the next poll tick.
func (g *Gateway) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zlog.Warn().Err(err).Msg("ws: upgrade failed")
		return
	}

	client := newClient(uuid.New().String(), r.RemoteAddr, conn, g.handleCommand)
	g.hub.register <- client

	// The pumps outlive the HTTP handler; connection lifetime is managed
	// by the hub and by read/write errors, not the request context.
	go client.writePump()
	go client.readPump(g.hub)

	client.enqueue(marshalEnvelope(EventVersion, g.bridge.Version()))
	client.enqueue(marshalEnvelope(EventControlEnabled, g.bridge.ControlEnabled()))
	client.enqueue(marshalEnvelope(EventStateChange, g.bridge.CurrentState()))
	client.enqueue(marshalEnvelope(EventRamping, g.bridge.Ramping()))
}

// handleCommand decodes and dispatches one inbound command frame.
// Rejections and failures are reported back to the issuing client only.
func (g *Gateway) handleCommand(c *Client, frame []byte) {
	var cmd commandFrame
	if err := json.Unmarshal(frame, &cmd); err != nil {
		c.logWarn(err, "ws: bad command frame")
		return
	}
	if cmd.Type != "command" || cmd.Action == "" {
		return
	}

	if err := g.dispatch(context.Background(), cmd); err != nil {
		c.enqueue(marshalEnvelope(EventCommandError, map[string]string{
			"action":  cmd.Action,
			"message": err.Error(),
		}))
	}
}

// dispatch maps one command frame onto the bridge verb surface.
func (g *Gateway) dispatch(ctx context.Context, cmd commandFrame) error {
	b := g.bridge
	switch cmd.Action {
	case "play":
		return b.Play(ctx)
	case "pause":
		return b.Pause(ctx)
	case "playPause":
		return b.TogglePlayPause(ctx)
	case "next":
		return b.NextTrack(ctx)
	case "previous":
		return b.PreviousTrack(ctx)

	case "seek":
		var args struct {
			Position float64 `mapstructure:"position"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.SeekTo(ctx, args.Position)

	case "seekRelative":
		var args struct {
			Delta float64 `mapstructure:"delta"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.SeekBy(ctx, args.Delta)

	case "playTrack":
		var args struct {
			Track string `mapstructure:"track"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.PlayTrack(ctx, args.Track)

	case "playTrackInContext":
		var args struct {
			Track   string `mapstructure:"track"`
			Context string `mapstructure:"context"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.PlayTrackInContext(ctx, args.Track, args.Context)

	case "setVolume":
		var args struct {
			Volume int `mapstructure:"volume"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.SetVolume(ctx, args.Volume)

	case "volumeUp":
		return b.VolumeUp(ctx)
	case "volumeDown":
		return b.VolumeDown(ctx)
	case "mute":
		return b.Mute(ctx)
	case "unmute":
		return b.Unmute(ctx)

	case "rampVolume":
		var args struct {
			Target          float64 `mapstructure:"target"`
			ChangePercent   float64 `mapstructure:"changePercent"`
			RampTimeSeconds float64 `mapstructure:"rampTimeSeconds"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.RampVolume(args.Target, args.ChangePercent, args.RampTimeSeconds)

	case "repeat":
		var args struct {
			On bool `mapstructure:"on"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.SetRepeat(ctx, args.On)

	case "shuffle":
		var args struct {
			On bool `mapstructure:"on"`
		}
		if err := decodeArgs(cmd.Args, &args); err != nil {
			return err
		}
		return b.SetShuffle(ctx, args.On)
	}

	zlog.Debug().Str("action", cmd.Action).Msg("ws: unknown command action")
	return nil
}

// decodeArgs decodes loosely-typed JSON args into a typed struct,
// tolerating numbers arriving as strings.
func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

func marshalEnvelope(eventType string, data any) []byte {
	msg, err := json.Marshal(Envelope{Type: eventType, Data: data})
	if err != nil {
		zlog.Error().Err(err).Str("type", eventType).Msg("ws: envelope marshal failed")
		return []byte(`{"type":"error"}`)
	}
	return msg
}
