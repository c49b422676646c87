// ABOUTME: Entry point for play-cli, an interactive Play room client
// ABOUTME: Loads config from file, .env, environment and flags, then joins a room
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Resonate-Protocol/play-go/internal/config"
	"github.com/Resonate-Protocol/play-go/internal/logging"
	"github.com/Resonate-Protocol/play-go/internal/ui"
	"github.com/Resonate-Protocol/play-go/pkg/codec"
	"github.com/Resonate-Protocol/play-go/pkg/play"
	"github.com/Resonate-Protocol/play-go/pkg/protocol"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	eventPing      = 1
	requestTimeout = 10 * time.Second
)

var (
	configPath = flag.String("config", "", "TOML config file")
	envFile    = flag.String("env", ".env", "dotenv file with PLAY_* variables")
	serverAddr = flag.String("server", "", "Router address (skip mDNS)")
	appID      = flag.String("app-id", "", "Application id")
	appKey     = flag.String("app-key", "", "Application key")
	userID     = flag.String("user", "", "User id (default: random)")
	roomName   = flag.String("room", "", "Room to join; a random room is joined when empty")
	create     = flag.Bool("create", false, "Create the room instead of joining it")
	lobby      = flag.Bool("lobby", false, "Watch the lobby room list before entering a room")
	insecure   = flag.Bool("insecure", false, "Use http and ws instead of https and wss")
	logFile    = flag.String("log-file", "", "Log file path")
	noTUI      = flag.Bool("no-tui", false, "Disable TUI, use streaming logs instead")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	useTUI := !cfg.NoTUI
	logger, err := logging.New(logging.ProfileRuntime, logging.Options{File: cfg.LogFile, Console: !useTUI})
	if err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	var tuiProg *tea.Program
	var controls *ui.Controls
	if useTUI {
		controls = ui.NewControls()
		tuiProg, err = ui.Run(controls)
		if err != nil {
			logger.Fatal("failed to start TUI", zap.Error(err))
		}
		go func() {
			if _, err := tuiProg.Run(); err != nil {
				logger.Error("TUI stopped", zap.Error(err))
			}
		}()
	}

	s := &session{cfg: cfg, log: logger, tui: tuiProg}
	if err := s.start(); err != nil {
		if tuiProg != nil {
			tuiProg.Quit()
			tuiProg.Wait()
		}
		logger.Fatal("session failed", zap.Error(err))
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var quit chan struct{}
	var actions chan ui.Action
	if controls != nil {
		quit, actions = controls.Quit, controls.Actions
	}

loop:
	for {
		select {
		case a := <-actions:
			s.handleAction(a)
		case <-quit:
			logger.Info("received quit from TUI")
			break loop
		case <-sigChan:
			logger.Info("shutdown signal received")
			break loop
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	if err := s.client.Close(ctx); err != nil {
		logger.Warn("error closing client", zap.Error(err))
	}
	if tuiProg != nil {
		tuiProg.Quit()
	}
	logger.Info("play-cli stopped")
}

// loadConfig applies defaults, the config file, .env and the environment, then explicit flags
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if *configPath != "" {
		if err := config.LoadFile(*configPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := config.LoadEnv(*envFile, &cfg); err != nil {
		return cfg, err
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.Server = *serverAddr
		case "app-id":
			cfg.AppID = *appID
		case "app-key":
			cfg.AppKey = *appKey
		case "user":
			cfg.UserID = *userID
		case "room":
			cfg.Room = *roomName
		case "create":
			cfg.Create = *create
		case "lobby":
			cfg.Lobby = *lobby
		case "insecure":
			cfg.Insecure = *insecure
		case "log-file":
			cfg.LogFile = *logFile
		case "no-tui":
			cfg.NoTUI = *noTUI
		}
	})

	if cfg.UserID == "" {
		cfg.UserID = "player-" + uuid.NewString()[:8]
	}
	return cfg, cfg.Validate()
}

// session drives one client for the lifetime of the command
type session struct {
	cfg    config.Config
	log    *zap.Logger
	tui    *tea.Program
	client *play.Client
}

func (s *session) start() error {
	client, err := play.NewClient(s.cfg.Client(s.log))
	if err != nil {
		return err
	}
	s.client = client
	s.subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout+s.cfg.DiscoveryTimeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return err
	}
	connected := true
	s.update(ui.StatusMsg{Connected: &connected, ServerName: s.serverName(), UserID: s.cfg.UserID})

	if s.cfg.Lobby {
		if err := client.JoinLobby(ctx); err != nil {
			return err
		}
		s.event("watching lobby")
		// give the first room list a moment to arrive
		time.Sleep(time.Second)
	}

	room, err := s.enterRoom(ctx)
	if err != nil {
		return err
	}
	s.event(fmt.Sprintf("entered %s as actor %d", room.Name(), room.Player().ActorID()))
	s.refresh()
	return nil
}

func (s *session) serverName() string {
	if s.cfg.Server == "" {
		return "mDNS router"
	}
	return s.cfg.Server
}

func (s *session) enterRoom(ctx context.Context) (*play.Room, error) {
	opts := s.cfg.RoomOptions()

	switch {
	case s.cfg.Create:
		return s.client.CreateRoom(ctx, s.cfg.Room, opts, nil)
	case s.cfg.Room != "":
		return s.client.JoinOrCreateRoom(ctx, s.cfg.Room, opts, nil)
	}

	room, err := s.client.JoinRandomRoom(ctx, nil, nil)
	if protocol.IsCode(err, protocol.CodeRoomNotFound) {
		s.log.Info("no open room, creating one")
		return s.client.CreateRoom(ctx, "", opts, nil)
	}
	return room, err
}

func (s *session) subscribe() {
	c := s.client

	c.OnLobbyRoomListUpdated(func(rooms []play.LobbyRoom) {
		s.event(fmt.Sprintf("lobby lists %d rooms", len(rooms)))
	})
	c.OnPlayerJoined(func(p *play.Player) {
		s.event(fmt.Sprintf("%s joined", p.UserID()))
		s.refresh()
	})
	c.OnPlayerLeft(func(p *play.Player) {
		s.event(fmt.Sprintf("%s left", p.UserID()))
		s.refresh()
	})
	c.OnMasterSwitched(func(p *play.Player) {
		if p == nil {
			s.event("room has no master")
		} else {
			s.event(fmt.Sprintf("%s is master", p.UserID()))
		}
		s.refresh()
	})
	c.OnRoomCustomPropertiesChanged(func(changed codec.Object) {
		s.event(fmt.Sprintf("room properties %s", formatProps(changed)))
		s.refresh()
	})
	c.OnRoomSystemPropertiesChanged(func(changed codec.Object) {
		s.event(fmt.Sprintf("room settings %s", formatProps(changed)))
		s.refresh()
	})
	c.OnPlayerCustomPropertiesChanged(func(ev play.PlayerPropertiesEvent) {
		s.event(fmt.Sprintf("%s properties %s", ev.Player.UserID(), formatProps(ev.Changed)))
	})
	c.OnPlayerActivityChanged(func(p *play.Player) {
		state := "offline"
		if p.IsActive() {
			state = "online"
		}
		s.event(fmt.Sprintf("%s is %s", p.UserID(), state))
		s.refresh()
	})
	c.OnCustomEvent(func(ev play.CustomEvent) {
		s.event(fmt.Sprintf("event %d from #%d %s", ev.EventID, ev.SenderID, formatProps(ev.Data)))
	})
	c.OnRoomKicked(func(ev play.KickedEvent) {
		reason := ev.Reason
		if ev.Code != nil {
			reason = fmt.Sprintf("%d %s", *ev.Code, reason)
		}
		s.event("kicked: " + reason)
		s.update(ui.StatusMsg{LeftRoom: true})
	})
	c.OnDisconnected(func() {
		s.event("connection lost, rejoining")
		go s.rejoin()
	})
	c.OnError(func(ev play.ErrorEvent) {
		s.event(fmt.Sprintf("server error %d: %s", ev.Code, ev.Detail))
	})
}

func (s *session) rejoin() {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := s.client.ReconnectAndRejoin(ctx); err != nil {
		s.event(fmt.Sprintf("rejoin failed: %v", err))
		s.update(ui.StatusMsg{LeftRoom: true})
		return
	}
	s.event("rejoined")
	s.refresh()
}

func (s *session) handleAction(a ui.Action) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var err error
	switch a {
	case ui.ActionSendEvent:
		err = s.client.SendEvent(eventPing, codec.Object{"sentAt": time.Now().UnixMilli()}, nil)
	case ui.ActionBumpGold:
		err = s.bumpGold(ctx)
	case ui.ActionToggleOpen:
		room := s.client.Room()
		if room == nil {
			err = errors.New("not in a room")
			break
		}
		_, err = s.client.SetRoomOpen(ctx, !room.Open())
	case ui.ActionTakeMaster:
		me := s.client.Player()
		if me == nil {
			err = errors.New("not in a room")
			break
		}
		_, err = s.client.SetMaster(ctx, me.ActorID())
	case ui.ActionLeave:
		err = s.client.LeaveRoom(ctx)
		if err == nil {
			s.update(ui.StatusMsg{LeftRoom: true})
		}
	}

	if err != nil {
		s.event(fmt.Sprintf("%s failed: %v", a, err))
		return
	}
	s.refresh()
}

// bumpGold adds 10 gold, only if nobody changed it since we last saw it
func (s *session) bumpGold(ctx context.Context) error {
	room := s.client.Room()
	if room == nil {
		return errors.New("not in a room")
	}

	gold, ok := room.CustomProperties().Int("gold")
	var expected codec.Object
	if ok {
		expected = codec.Object{"gold": gold}
	}
	if err := room.SetCustomProperties(ctx, codec.Object{"gold": gold + 10}, expected); err != nil {
		return err
	}
	if now, _ := room.CustomProperties().Int("gold"); now != gold+10 {
		s.event("gold changed concurrently, try again")
	}
	return nil
}

func (s *session) refresh() {
	room := s.client.Room()
	if room == nil {
		return
	}
	info := roomInfo(room)
	s.update(ui.StatusMsg{Room: &info})
}

func (s *session) update(msg ui.StatusMsg) {
	if s.tui != nil {
		s.tui.Send(msg)
	}
}

func (s *session) event(text string) {
	s.log.Info(text)
	if s.tui != nil {
		s.tui.Send(ui.EventMsg{Text: text})
	}
}

func roomInfo(room *play.Room) ui.RoomInfo {
	info := ui.RoomInfo{
		Name:       room.Name(),
		State:      room.State().String(),
		Open:       room.Open(),
		Visible:    room.Visible(),
		MaxPlayers: room.MaxPlayerCount(),
	}
	for _, p := range room.PlayerList() {
		info.Players = append(info.Players, ui.PlayerInfo{
			ActorID: p.ActorID(),
			UserID:  p.UserID(),
			Active:  p.IsActive(),
			Master:  p.IsMaster(),
			Local:   p.IsLocal(),
		})
	}
	props := room.CustomProperties()
	for _, k := range props.Keys() {
		info.Properties = append(info.Properties, fmt.Sprintf("%s=%v", k, props[k]))
	}
	return info
}

func formatProps(obj codec.Object) string {
	out := "{"
	for i, k := range obj.Keys() {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%v", k, obj[k])
	}
	return out + "}"
}
