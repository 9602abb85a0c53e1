package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"aiva-chat-client/internal/chat"
	"aiva-chat-client/internal/config"
	"aiva-chat-client/internal/gateway"
	"aiva-chat-client/internal/identity"
	"aiva-chat-client/internal/logging"
	"aiva-chat-client/internal/mirror"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using environment")
	}
	cfg := config.Load()

	logger := logging.New(cfg.LogFile, cfg.LogProd)
	defer logger.Sync()

	ident, err := resolveIdentity(cfg)
	if err != nil {
		logger.Fatal("identity", zap.Error(err))
	}

	mir, err := openMirror(cfg)
	if err != nil {
		logger.Fatal("mirror", zap.Error(err))
	}

	gw := gateway.NewClient(cfg.APIBaseURL, func() string { return cfg.SSOToken })

	store := chat.NewStore(gw, mir, ident, chat.Options{
		ListLimit:   cfg.SessionListLimit,
		SearchLimit: cfg.SearchLimit,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := store.Initialize(ctx); err != nil {
		logger.Fatal("initialize", zap.Error(err))
	}
	printStatus(store, ident)

	repl(ctx, store)
	fmt.Println("bye")
}

func resolveIdentity(cfg config.Config) (chat.IdentityInfo, error) {
	if cfg.SSOToken == "" {
		return identity.Static(cfg.UserID, chat.Authority(cfg.DefaultAuthority)), nil
	}
	gate := identity.NewGate(cfg.JWTSecret, cfg.IdentityClient)
	return gate.FromToken(cfg.SSOToken)
}

func openMirror(cfg config.Config) (chat.Mirror, error) {
	switch cfg.MirrorBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		return mirror.NewRedis(rdb), nil
	case "", "sqlite":
		return mirror.OpenSQLite(cfg.MirrorPath)
	default:
		return nil, fmt.Errorf("unsupported CHAT_MIRROR_BACKEND=%q", cfg.MirrorBackend)
	}
}

func repl(ctx context.Context, store *chat.Store) {
	sc := bufio.NewScanner(os.Stdin)
	fmt.Println(`commands: /new [title], /list, /switch <id>, /delete [id], /rename <title>, /search <query>, /status, /quit`)

	for {
		fmt.Print("> ")
		if !sc.Scan() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}

		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			send(ctx, store, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/quit", "/exit":
			return
		case "/new":
			s, err := store.CreateSession(ctx, arg, "")
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("created %s (%s)\n", s.Title, s.ID)
		case "/list":
			for _, s := range store.Sessions() {
				marker := " "
				if cur := store.CurrentSession(); cur != nil && cur.ID == s.ID {
					marker = "*"
				}
				fmt.Printf("%s %s  %s  [%s]\n", marker, s.ID, s.Title, s.Authority)
			}
		case "/switch":
			if err := store.SwitchSession(ctx, arg); err != nil {
				fmt.Println("error:", err)
			}
		case "/delete":
			id := arg
			if id == "" {
				if cur := store.CurrentSession(); cur != nil {
					id = cur.ID
				}
			}
			if err := store.DeleteSession(ctx, id); err != nil {
				fmt.Println("error:", err)
			}
		case "/rename":
			cur := store.CurrentSession()
			if cur == nil {
				fmt.Println("no current session")
				continue
			}
			if err := store.RenameSession(ctx, cur.ID, arg); err != nil {
				fmt.Println("error:", err)
			}
		case "/search":
			res, err := store.SearchSessions(ctx, arg, "")
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			fmt.Printf("%d match(es) for %q\n", res.Count, res.Query)
			for _, s := range res.Sessions {
				fmt.Printf("  %s  %s\n", s.ID, s.Title)
			}
		case "/status":
			printStatus(store, nil)
		default:
			fmt.Println("unknown command:", cmd)
		}
	}
}

func send(ctx context.Context, store *chat.Store, content string) {
	reply, err := store.SendMessage(ctx, content, "", "")
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	if reply.AssistantMessage != nil {
		fmt.Println(reply.AssistantMessage.Content)
	}
	if msg := store.LastError(); msg != "" {
		fmt.Println("(degraded:", msg+")")
	}
}

func printStatus(store *chat.Store, ident chat.IdentityInfo) {
	mode := "online"
	if !store.IsOnline() {
		mode = "offline"
	}
	if ident != nil {
		fmt.Printf("user %s [%s], %s, %d session(s)\n",
			ident.UserID(), ident.Authority(), mode, len(store.Sessions()))
		return
	}
	fmt.Printf("%s, %d session(s)\n", mode, len(store.Sessions()))
}
