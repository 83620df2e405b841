// Command platformer-client connects to a platformer-server room and
// renders the game to the terminal. Adapted from
// github.com/andersfylling/rayman-slides's cmd/rayman, which was a 24-line
// stub ("TODO: Parse flags... TODO: Initialize renderer... TODO: Run game
// loop").
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/andersfylling/netcode/netcode"
	"github.com/andersfylling/netcode/examples/platformer"
	"github.com/andersfylling/netcode/internal/render"
	"github.com/andersfylling/netcode/netcode/transport/wsnet"
)

const frameIntervalMs = 1000.0 / 30.0

func main() {
	serverAddr := flag.String("server", "ws://127.0.0.1:8080/join", "server websocket URL (including ?code=...)")
	flag.Parse()

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

	dialer := wsnet.NewDialer()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	conn, err := dialer.Dial(ctx, *serverAddr)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "dial failed:", err)
		os.Exit(1)
	}

	playerID := netcode.PlayerID(uuid.NewString())
	client, err := netcode.NewClient(platformer.NewClientConfig(playerID, conn, log))
	if err != nil {
		fmt.Fprintln(os.Stderr, "handshake failed:", err)
		os.Exit(1)
	}
	defer client.Destroy()

	renderer := render.NewASCIIRenderer(80, 24, os.Stdout)
	_ = renderer.Init()
	defer renderer.Close()

	inputTicker := time.NewTicker(time.Duration(frameIntervalMs) * time.Millisecond)
	defer inputTicker.Stop()

	recvCtx, recvCancel := context.WithCancel(context.Background())
	defer recvCancel()
	envelopes := make(chan netcode.Envelope, 64)
	go pumpEnvelopes(recvCtx, conn, envelopes)

	var tick int
	for {
		select {
		case <-inputTicker.C:
			tick++
			input := platformer.Input{
				Right:     tick%60 < 30,
				Jump:      tick%90 == 0,
				Timestamp: time.Now(),
			}
			if err := client.SendInput(input); err != nil {
				log.WithError(err).Warn("send input failed")
			}
			drawFrame(renderer, client, playerID)

		case env, ok := <-envelopes:
			if !ok {
				return
			}
			if err := client.HandleEnvelope(env); err != nil {
				log.WithError(err).Warn("handle envelope failed")
			}
		}
	}
}

func pumpEnvelopes(ctx context.Context, conn interface {
	Recv(context.Context) ([]byte, error)
}, out chan<- netcode.Envelope) {
	defer close(out)
	for {
		data, err := conn.Recv(ctx)
		if err != nil {
			return
		}
		env, err := netcode.DecodeEnvelope(data)
		if err != nil {
			continue
		}
		select {
		case out <- env:
		case <-ctx.Done():
			return
		}
	}
}

func drawFrame(r *render.ASCIIRenderer, client *netcode.Client[*platformer.World, platformer.Input, platformer.AttackAction, platformer.AttackResult], self netcode.PlayerID) {
	r.Clear()
	world := client.GetStateForRendering()

	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			r.SetCell(x, y, ' ', render.ColorWhite, render.ColorBlack)
		}
	}

	if pos, ok := platformer.GetLocalPlayerPosition(world, self); ok {
		r.SetCell(int(pos.X), int(pos.Y), '@', render.ColorGreen, render.ColorBlack)
	}
	r.RenderText(0, 22, fmt.Sprintf("player %s", self), render.ColorGray)
	r.Flush()
}
