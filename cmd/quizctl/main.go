// Command quizctl is a terminal client for the quiz service.
//
//	quizctl upload -file quiz.json
//	quizctl take -quiz geo-1
//	quizctl review -quiz geo-1 -attempt <id>
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/mind-engage/mindengage-quiz/internal/client"
	"github.com/mind-engage/mindengage-quiz/internal/quiz"
)

type globals struct {
	server   string
	user     string
	password string
	role     string
	stateDir string
}

func main() {
	_ = godotenv.Load()
	log.SetFlags(0)
	if len(os.Args) < 2 {
		usage()
	}
	cmd, args := os.Args[1], os.Args[2:]

	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	g := globals{}
	fs.StringVar(&g.server, "server", envOr("QUIZ_SERVER", "http://localhost:8080"), "quiz service base URL")
	fs.StringVar(&g.user, "user", os.Getenv("QUIZ_USER"), "username")
	fs.StringVar(&g.password, "password", os.Getenv("QUIZ_PASSWORD"), "password")
	fs.StringVar(&g.role, "role", "", "login role (student for take, teacher for upload)")
	fs.StringVar(&g.stateDir, "state", envOr("QUIZ_STATE_DIR", ".quizctl"), "local snapshot directory")
	file := fs.String("file", "", "quiz JSON to upload")
	quizID := fs.String("quiz", "", "quiz id")
	attemptID := fs.String("attempt", "", "attempt id")
	_ = fs.Parse(args)

	ctx := context.Background()
	switch cmd {
	case "upload":
		if *file == "" {
			log.Fatal("upload: -file required")
		}
		c := login(ctx, g, "teacher")
		if err := upload(ctx, c, *file); err != nil {
			log.Fatalf("upload: %v", err)
		}
	case "take":
		if *quizID == "" {
			log.Fatal("take: -quiz required")
		}
		c := login(ctx, g, "student")
		t := &taker{c: c, quizID: *quizID, user: g.user, stateDir: g.stateDir, in: os.Stdin, out: os.Stdout}
		if err := t.run(ctx); err != nil {
			log.Fatalf("take: %v", err)
		}
	case "review":
		if *quizID == "" || *attemptID == "" {
			log.Fatal("review: -quiz and -attempt required")
		}
		c := login(ctx, g, "student")
		rv, err := c.Review(ctx, *quizID, *attemptID)
		if err != nil {
			log.Fatalf("review: %v", err)
		}
		printReview(os.Stdout, rv)
	default:
		usage()
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: quizctl upload|take|review [flags]")
	os.Exit(2)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func login(ctx context.Context, g globals, defRole string) *client.Client {
	if g.role == "" {
		g.role = defRole
	}
	c := client.New(client.Config{BaseURL: g.server, Timeout: 15 * time.Second})
	lctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := c.Login(lctx, g.user, g.password, g.role); err != nil {
		log.Fatalf("login: %v", err)
	}
	return c
}

func upload(ctx context.Context, c *client.Client, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var qz quiz.Quiz
	if err := json.Unmarshal(raw, &qz); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	// catch authoring mistakes before the round trip
	if err := qz.Validate(); err != nil {
		return err
	}
	if err := c.UploadQuiz(ctx, qz); err != nil {
		return err
	}
	fmt.Printf("uploaded %s (%d questions, max score %d)\n", qz.ID, len(qz.Questions), qz.MaxScore())
	return nil
}
