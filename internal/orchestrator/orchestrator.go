// Package orchestrator wires one user's IRC clients to the archive and to
// live WebSocket subscribers (spec §4.6 C10).
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nitric1/SudaGureum/internal/archive"
	"github.com/nitric1/SudaGureum/internal/ircclient"
	"github.com/nitric1/SudaGureum/internal/ircpool"
)

// ServerConfig is one configured IRC server for a user (spec §3
// UserServerInfo, trimmed to what Orchestrator needs to connect and
// auto-join).
type ServerConfig struct {
	Name     string
	Channels []string
	ircclient.Config
}

// UserEntry is the construction input (spec §4.6): a user id and its
// configured servers.
type UserEntry struct {
	UserID  string
	Servers []ServerConfig
}

// Subscriber receives a live feed of archived lines for (userId,
// serverName, channel) — the extension point spec §9 leaves to the
// implementer, shaped after streamspace's Hub register/broadcast pattern.
type Subscriber interface {
	Notify(line archive.LogLine)
}

// Orchestrator owns one user's IRC clients and projects their events into
// the archive store, and out to any registered Subscribers.
type Orchestrator struct {
	userID  string
	pool    *ircpool.Pool
	store   *archive.Store
	log     zerolog.Logger
	clients map[string]*ircclient.Client // serverName -> client

	mu          sync.Mutex
	subscribers []Subscriber
}

// New constructs an Orchestrator for entry, registering IRC event handlers
// on a fresh client per configured server (spec §4.6 "Registers event
// handlers on each IRC client at creation time and issues connects").
func New(entry UserEntry, pool *ircpool.Pool, store *archive.Store, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		userID:  entry.UserID,
		pool:    pool,
		store:   store,
		log:     log,
		clients: map[string]*ircclient.Client{},
	}

	for _, sc := range entry.Servers {
		o.addServer(sc)
	}
	return o
}

// Subscribe registers s to receive every archived line across this user's
// servers from now on.
func (o *Orchestrator) Subscribe(s Subscriber) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.subscribers = append(o.subscribers, s)
}

func (o *Orchestrator) addServer(sc ServerConfig) {
	events := ircclient.Events{
		OnConnect: func(c *ircclient.Client) {
			o.onConnect(sc, c)
		},
		OnServerMessage: func(c *ircclient.Client, text string) {
			o.archive(sc.Name, "", "", archive.LogServerMsg, text)
		},
		OnJoinChannel: func(c *ircclient.Client, channel, nickname string) {
			o.archive(sc.Name, channel, nickname, archive.LogJoin, "")
		},
		OnPartChannel: func(c *ircclient.Client, channel, nickname string) {
			o.archive(sc.Name, channel, nickname, archive.LogPart, "")
		},
		OnChannelMessage: func(c *ircclient.Client, channel, nickname, text string) {
			o.archive(sc.Name, channel, nickname, archive.LogPrivmsg, text)
		},
		OnChannelNotice: func(c *ircclient.Client, channel, nickname, text string) {
			if channel == "" {
				o.archive(sc.Name, "", "", archive.LogNotice, text)
				return
			}
			o.archive(sc.Name, channel, nickname, archive.LogNotice, text)
		},
		OnPersonalMessage: func(c *ircclient.Client, nickname, text string) {
			o.archive(sc.Name, nickname, nickname, archive.LogPrivmsg, text)
		},
	}

	client := o.pool.Spawn(context.Background(), sc.Config, events)
	o.clients[sc.Name] = client
}

func (o *Orchestrator) onConnect(sc ServerConfig, client *ircclient.Client) {
	client.Send("MODE", client.Nickname(), "+x")
	for _, ch := range sc.Channels {
		client.Send("JOIN", ch)
	}
}

func (o *Orchestrator) archive(server, channel, nickname string, logType archive.LogType, message string) {
	line := archive.LogLine{
		UserID:   o.userID,
		Server:   server,
		Channel:  channel,
		Time:     time.Now().Unix(),
		Nickname: nickname,
		Type:     logType,
		Message:  message,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.store.Insert(ctx, line); err != nil {
		o.log.Warn().Err(err).Str("userId", o.userID).Str("server", server).Msg("archive insert failed")
	}

	o.mu.Lock()
	subs := append([]Subscriber(nil), o.subscribers...)
	o.mu.Unlock()
	for _, s := range subs {
		s.Notify(line)
	}
}

// Shutdown gracefully closes every server connection for this user.
func (o *Orchestrator) Shutdown() {
	for _, c := range o.clients {
		c.Close()
	}
}
