// Command platformer-server runs a standalone platformer example server:
// a lobby HTTP endpoint to mint room codes and a websocket endpoint
// clients connect to by room code. Adapted from
// github.com/andersfylling/rayman-slides's cmd/rayserver, which was a
// 23-line stub ("TODO: Start UDP/TCP server... TODO: Run server tick
// loop...").
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/andersfylling/netcode/netcode"
	"github.com/andersfylling/netcode/examples/platformer"
	"github.com/andersfylling/netcode/netcode/lobby"
	"github.com/andersfylling/netcode/netcode/transport/wsnet"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	maxPlayers := flag.Int("max-players", 4, "players per room")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	rooms := lobby.NewStore(30 * time.Minute)
	server := netcode.NewServer(platformer.NewServerConfig(log))
	upgrader := wsnet.NewUpgrader()

	mux := http.NewServeMux()
	mux.HandleFunc("/rooms", func(w http.ResponseWriter, r *http.Request) {
		room, hostID := rooms.Create("host", "Platformer game", *maxPlayers)
		log.WithFields(logrus.Fields{"code": room.Code, "host": hostID}).Info("room created")
		_, _ = w.Write([]byte(room.Code))
	})
	mux.HandleFunc("/join", func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		room, id, err := rooms.Join(code)
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		log.WithFields(logrus.Fields{"code": room.Code, "player": id}).Info("player joined room")

		conn, err := upgrader.Upgrade(w, r)
		if err != nil {
			log.WithError(err).Error("websocket upgrade failed")
			return
		}

		// server.ServeClient outlives this handler, so it must not inherit
		// r.Context(): net/http cancels that context the instant /join
		// returns, which is right after this goroutine is spawned, and would
		// kill the connection's Recv loop almost immediately.
		go func() {
			if err := server.ServeClient(context.Background(), id, conn); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).WithField("player", id).Warn("client session ended")
			}
			rooms.Leave(room.Code, id)
		}()
	})

	if err := server.Start(); err != nil {
		log.WithError(err).Fatal("failed to start tick loop")
	}
	defer server.Stop()

	cleanup := time.NewTicker(time.Minute)
	defer cleanup.Stop()
	go func() {
		for range cleanup.C {
			rooms.Cleanup()
		}
	}()

	httpServer := &http.Server{Addr: *addr, Handler: mux}
	go func() {
		log.WithField("addr", *addr).Info("platformer server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("http server failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
}
