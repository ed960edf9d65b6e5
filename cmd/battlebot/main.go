// battlebot is a headless opponent: give it a game code and it joins,
// waits for approval and start, then plays the battle with randomly
// picked choices. Useful for exercising a lobby without a second phone.
package main

import (
	"context"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"word-battle-system/client"
	"word-battle-system/services"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// randomAnswerer guesses from the offered choices.
type randomAnswerer struct{}

func (randomAnswerer) Answer(_ context.Context, q services.QuestionItem) (string, error) {
	if len(q.Choices) == 0 {
		return "", nil
	}
	return q.Choices[rand.Intn(len(q.Choices))], nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading environment variables directly")
	}

	code := flag.String("code", "", "game code of the lobby to join")
	flag.Parse()
	if *code == "" {
		log.Fatal("usage: battlebot -code ABC123")
	}

	baseURL := os.Getenv("BATTLE_SERVICE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:5300"
	}
	gatewayToken := os.Getenv("BATTLE_SERVICE_TOKEN")
	if gatewayToken == "" {
		log.Fatal("BATTLE_SERVICE_TOKEN environment variable not set")
	}
	contentURL := os.Getenv("CONTENT_SERVICE_URL")
	if contentURL == "" {
		log.Fatal("CONTENT_SERVICE_URL environment variable not set")
	}

	botID := os.Getenv("BOT_USER_ID")
	if botID == "" {
		botID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	api := client.NewAPIClient(baseURL, gatewayToken, botID)
	questions := services.NewContentClient(contentURL, gatewayToken)

	lobby, err := api.JoinLobby(ctx, *code)
	if err != nil {
		log.Fatalf("join failed: %v", err)
	}
	log.Printf("[Bot] joined lobby %s as %s, waiting for host", lobby.ID, botID)

	poller := client.NewPoller(api, lobby.ID, client.RoleOpponent)
	events := poller.Run(ctx)

	for ev := range events {
		switch ev.Kind {
		case client.EventApproved:
			if err := api.MarkReady(ctx, lobby.ID); err != nil {
				log.Fatalf("ready failed: %v", err)
			}
			log.Println("[Bot] approved by host, marked ready")
		case client.EventStarted:
			log.Println("[Bot] battle started")
			runner := client.NewRunner(api, questions, randomAnswerer{})
			result, err := runner.Run(ctx, ev.Lobby)
			if err != nil {
				log.Fatalf("battle failed: %v", err)
			}
			log.Printf("[Bot] battle over: winner=%s (%s %d vs %s %d)",
				result.Winner, result.HostName, result.HostScore,
				result.OpponentName, result.OpponentScore)
			return
		case client.EventKicked:
			log.Println("[Bot] kicked by host")
			return
		case client.EventLobbyGone:
			log.Println("[Bot] lobby disappeared")
			return
		}
	}
}
