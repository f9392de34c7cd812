// cmd/snakes/main.go
//
// Terminal client.
//   - Host:  snakes -host -game g1 -player p1 -players p1,p2
//   - Join:  snakes -game g1 -player p2 -token <token printed by host>
//   - Local: snakes -local -players a,b   (hot seat, in-process store)
//
// Press Enter to roll for the local player (for the turn holder in -local),
// q to quit.

package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/robalobadob/snakesladders/internal/board"
	"github.com/robalobadob/snakesladders/internal/config"
	"github.com/robalobadob/snakesladders/internal/dice"
	"github.com/robalobadob/snakesladders/internal/game"
	"github.com/robalobadob/snakesladders/internal/remote"
	"github.com/robalobadob/snakesladders/internal/session"
	"github.com/robalobadob/snakesladders/internal/store"
)

type options struct {
	server  string
	local   bool
	gameID  string
	player  string
	host    bool
	players string
	token   string
	board   string
	seed    int64
	forfeit bool
}

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	config.SetLogLevel(cfg.LogLevel)

	var o options
	flag.StringVar(&o.server, "server", cfg.ServerURL, "game store server URL")
	flag.BoolVar(&o.local, "local", false, "hot seat game on an in-process store")
	flag.StringVar(&o.gameID, "game", "", "game id (hosts get a fresh one when empty)")
	flag.StringVar(&o.player, "player", "", "local player id")
	flag.BoolVar(&o.host, "host", false, "create the game instead of joining it")
	flag.StringVar(&o.players, "players", "p1,p2", "comma separated player ids in turn order (host)")
	flag.StringVar(&o.token, "token", cfg.Token, "player token issued by the host")
	flag.StringVar(&o.board, "board", cfg.BoardFile, "board YAML file (default: classic board)")
	flag.Int64Var(&o.seed, "seed", 0, "dice seed (0: random)")
	flag.BoolVar(&o.forfeit, "forfeit", cfg.TripleSixForfeit, "third consecutive six forfeits the move")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, o); err != nil {
		log.Error().Err(err).Msg("snakes")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Client, o options) error {
	b := board.Classic()
	if o.board != "" {
		var err error
		if b, err = board.LoadFile(o.board); err != nil {
			return err
		}
	}

	var d *dice.Dice
	if o.seed != 0 {
		d = dice.NewSeeded(o.seed)
	} else {
		var err error
		if d, err = dice.NewRandom(); err != nil {
			return err
		}
	}

	if o.local {
		o.host = true
		if o.gameID == "" {
			o.gameID = uuid.NewString()
		}
	}
	if o.gameID == "" && !o.host {
		return errors.New("-game is required to join")
	}
	ids := splitIDs(o.players)
	if o.player == "" && !o.local {
		if !o.host || len(ids) == 0 {
			return errors.New("-player is required")
		}
		o.player = ids[0]
	}

	var st store.GameStore
	var client *remote.Client
	if o.local {
		mem := store.NewMemoryStore()
		defer mem.Close()
		st = mem
	} else {
		c, err := remote.New(o.server,
			remote.WithPlayer(o.player),
			remote.WithToken(o.token),
			remote.WithLogger(log.Logger))
		if err != nil {
			return err
		}
		st, client = c, c
	}

	scfg := session.Config{
		GameID:       o.gameID,
		Store:        st,
		Board:        b,
		Dice:         d,
		Rules:        game.Rules{TripleSixForfeit: o.forfeit},
		Logger:       log.Logger,
		WriteTimeout: cfg.WriteTimeout,
	}

	var s *session.Session
	if o.host {
		if len(ids) == 0 {
			return errors.New("-players is empty")
		}
		players := make([]game.Player, len(ids))
		for i, id := range ids {
			players[i] = game.NewPlayer(id)
		}
		var err error
		if o.gameID == "" {
			// The server assigns the id; the session joins what it created.
			if scfg.GameID, err = client.Create(ctx, players, ids[0]); err != nil {
				return err
			}
			o.gameID = scfg.GameID
			s, err = session.Join(ctx, scfg)
		} else {
			s, err = session.Host(ctx, scfg, players, ids[0])
		}
		if err != nil {
			return err
		}
		fmt.Printf("game %s created\n", s.GameID())
		if client != nil {
			printTokens(o, client.Tokens())
		}
	} else {
		var err error
		if s, err = session.Join(ctx, scfg); err != nil {
			return err
		}
		fmt.Printf("joined game %s as %s\n", s.GameID(), o.player)
	}
	defer s.Close()

	me := o.player
	if o.local {
		me = ""
	}
	done := make(chan struct{})
	var over sync.Once
	p := newPrinter(os.Stdout, me)
	p.board(s.Board())
	s.OnEvent(func(ev session.Event) {
		p.event(ev)
		if ev.Kind == session.EventGameOver {
			over.Do(func() { close(done) })
		}
	})
	p.status(s.Snapshot())

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- strings.TrimSpace(sc.Text())
		}
		close(lines)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-done:
			return nil
		case line, ok := <-lines:
			if !ok || line == "q" {
				return nil
			}
			id := o.player
			if o.local {
				id = s.Snapshot().State.CurrentTurn
			}
			if _, err := s.RequestRoll(id); err != nil {
				fmt.Printf("cannot roll: %v\n", err)
			}
		}
	}
}

func splitIDs(s string) []string {
	var out []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

func printTokens(o options, tokens map[string]string) {
	if len(tokens) == 0 {
		return
	}
	ids := make([]string, 0, len(tokens))
	for id := range tokens {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if id == o.player {
			continue
		}
		fmt.Printf("  %s joins with: snakes -server %s -game %s -player %s -token %s\n", id, o.server, o.gameID, id, tokens[id])
	}
}
