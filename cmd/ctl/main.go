// Package main provides a control CLI for a running bridge, for
// operating and testing it from the terminal.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/ReynoldsProductions/SpotifyHeadless/internal/domain/player"
)

var (
	app    = kingpin.New("spotifyheadless-ctl", "SpotifyHeadless control client")
	server = app.Flag("server", "Bridge address").Default("http://localhost:8177").String()

	stateCmd   = app.Command("state", "Print the current playback state")
	versionCmd = app.Command("version", "Print the bridge API version")

	playCmd      = app.Command("play", "Resume playback")
	pauseCmd     = app.Command("pause", "Pause playback")
	playPauseCmd = app.Command("playpause", "Toggle play/pause")
	nextCmd      = app.Command("next", "Skip to the next track")
	previousCmd  = app.Command("previous", "Return to the previous track")

	seekCmd      = app.Command("seek", "Seek to a position")
	seekPosition = seekCmd.Arg("seconds", "Position in seconds").Required().Float64()

	volumeCmd     = app.Command("volume", "Set the volume")
	volumePercent = volumeCmd.Arg("percent", "Volume 0-100").Required().Int()

	rampCmd      = app.Command("ramp", "Ramp the volume gradually")
	rampTarget   = rampCmd.Arg("target", "Target volume 0-100").Required().Float64()
	rampChange   = rampCmd.Flag("change", "Step size in percent").Default("10").Float64()
	rampDuration = rampCmd.Flag("duration", "Total ramp time in seconds").Default("30").Float64()

	muteCmd   = app.Command("mute", "Mute playback")
	unmuteCmd = app.Command("unmute", "Restore the pre-mute volume")

	repeatCmd = app.Command("repeat", "Set repeat")
	repeatOn  = repeatCmd.Arg("on", "on or off").Required().Enum("on", "off")

	shuffleCmd = app.Command("shuffle", "Set shuffle")
	shuffleOn  = shuffleCmd.Arg("on", "on or off").Required().Enum("on", "off")

	playTrackCmd = app.Command("play-track", "Play a specific track")
	playTrackURI = playTrackCmd.Arg("uri", "Track URI or bare ID").Required().String()

	subscribeCmd = app.Command("subscribe", "Subscribe to the event feed")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case stateCmd.FullCommand():
		printState()
	case versionCmd.FullCommand():
		get("/api/version")
	case playCmd.FullCommand():
		post("/api/play", nil)
	case pauseCmd.FullCommand():
		post("/api/pause", nil)
	case playPauseCmd.FullCommand():
		post("/api/playpause", nil)
	case nextCmd.FullCommand():
		post("/api/next", nil)
	case previousCmd.FullCommand():
		post("/api/previous", nil)
	case seekCmd.FullCommand():
		post("/api/seek", map[string]any{"position": *seekPosition})
	case volumeCmd.FullCommand():
		post("/api/volume", map[string]any{"volume": *volumePercent})
	case rampCmd.FullCommand():
		post("/api/volume/ramp", map[string]any{
			"target":          *rampTarget,
			"changePercent":   *rampChange,
			"rampTimeSeconds": *rampDuration,
		})
	case muteCmd.FullCommand():
		post("/api/mute", nil)
	case unmuteCmd.FullCommand():
		post("/api/unmute", nil)
	case repeatCmd.FullCommand():
		post("/api/repeat", map[string]any{"on": *repeatOn == "on"})
	case shuffleCmd.FullCommand():
		post("/api/shuffle", map[string]any{"on": *shuffleOn == "on"})
	case playTrackCmd.FullCommand():
		post("/api/play-track", map[string]any{"uri": *playTrackURI})
	case subscribeCmd.FullCommand():
		subscribe()
	}
}

func printState() {
	resp, err := http.Get(*server + "/api/state")
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	var payload player.StateChangePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	info := payload.PlaybackInfo
	fmt.Printf("State:    %s\n", info.PlayerState)
	if info.Name != "" {
		fmt.Printf("Track:    %s\n", info.Name)
		fmt.Printf("Artist:   %s\n", info.Artist)
		fmt.Printf("Album:    %s\n", info.Album)
		fmt.Printf("Position: %.1fs / %dms\n", info.PlaybackPosition, info.Duration)
	}
	fmt.Printf("Volume:   %d\n", payload.State.Volume)
	fmt.Printf("Repeat:   %v  Shuffle: %v\n", payload.State.IsRepeating, payload.State.IsShuffling)
	if info.DeviceName != "" {
		fmt.Printf("Device:   %s (active: %v)\n", info.DeviceName, info.DeviceIsActive)
	}
}

func get(path string) {
	resp, err := http.Get(*server + path)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func post(path string, body map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	resp, err := http.Post(*server+path, "application/json", reader)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	printResponse(resp)
}

func printResponse(resp *http.Response) {
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if resp.StatusCode != http.StatusOK {
		fmt.Printf("Rejected [%d]: %v\n", resp.StatusCode, body["error"])
		os.Exit(1)
	}
	for k, v := range body {
		fmt.Printf("%s: %v\n", k, v)
	}
}

func subscribe() {
	wsURL := strings.Replace(*server, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Subscribed to events. Press Ctrl+C to exit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\nUnsubscribing...")
		os.Exit(0)
	}()

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			fmt.Printf("Stream error: %v\n", err)
			return
		}
		printEvent(frame)
	}
}

func printEvent(frame []byte) {
	var env struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &env); err != nil {
		fmt.Printf("Bad frame: %v\n", err)
		return
	}

	switch env.Type {
	case "state_change":
		var payload player.StateChangePayload
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			fmt.Printf("Bad state frame: %v\n", err)
			return
		}
		fmt.Println("\n=== STATE CHANGED ===")
		fmt.Printf("  %s  %s / %s  vol=%d pos=%.1fs\n",
			payload.PlaybackInfo.PlayerState,
			payload.PlaybackInfo.Name,
			payload.PlaybackInfo.Artist,
			payload.State.Volume,
			payload.State.Position)
	case "ramping":
		fmt.Printf("\n=== RAMPING: %s ===\n", env.Data)
	default:
		fmt.Printf("\n[%s] %s\n", env.Type, env.Data)
	}
}
