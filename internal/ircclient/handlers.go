package ircclient

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nitric1/SudaGureum/internal/ircmsg"
)

// dispatch routes a parsed message to its handler (spec §4.3 "Receive
// path"). Unknown commands are ignored.
func (c *Client) dispatch(m *ircmsg.Message) {
	// Commands are matched case-insensitively; Parse preserves the
	// original case on m.Command for the round-trip invariant (spec §8).
	switch strings.ToUpper(m.Command) {
	case "PING":
		c.sendRaw(&ircmsg.Message{Command: "PONG", Params: m.Params})
	case "ERROR":
		c.handleError(m)
	case "JOIN":
		c.handleJoin(m)
	case "PART":
		c.handlePart(m)
	case "MODE":
		c.handleMode(m)
	case "NICK":
		c.handleNick(m)
	case "PRIVMSG":
		c.handlePrivmsg(m)
	case "NOTICE":
		c.handleNotice(m)
	case "001":
		c.handleWelcome(m)
	case "005":
		c.handleISupport(m)
	case "331":
		c.handleTopicMissing(m)
	case "332":
		c.handleTopic(m)
	case "333":
		c.handleTopicWhoTime(m)
	case "353":
		c.handleNames(m)
	case "366":
		// RPL_ENDOFNAMES: no state change.
	case "432", "433", "436", "437":
		c.handleNickCollision(m)
	}
}

func nickFromPrefix(prefix string) string {
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

func (c *Client) selfNick() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nickname
}

func (c *Client) handleError(_ *ircmsg.Message) {
	c.mu.Lock()
	ready := c.quitReady
	timer := c.closeTimer
	c.mu.Unlock()

	if !ready {
		return
	}
	if timer != nil {
		timer.Stop()
	}
	c.forceClose()
}

func (c *Client) handleNickCollision(m *ircmsg.Message) {
	c.mu.Lock()
	if !c.connectBeginning {
		c.mu.Unlock()
		return
	}
	c.nickIdx++
	if c.nickIdx >= len(c.cfg.Nicks) {
		c.mu.Unlock()
		c.forceClose()
		return
	}
	next := c.cfg.Nicks[c.nickIdx]
	c.nickname = next
	c.mu.Unlock()

	c.sendRaw(&ircmsg.Message{Command: "NICK", Params: []string{next}})
}

func (c *Client) handleNick(m *ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	from := nickFromPrefix(m.Prefix)
	to := m.Params[0]

	c.mu.Lock()
	if CaseFold(from) == CaseFold(c.nickname) {
		c.nickname = to
	}
	for _, ch := range c.channels {
		ch.renameParticipant(from, to)
	}
	c.mu.Unlock()
}

func (c *Client) handleJoin(m *ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	channelName := m.Params[0]
	who := nickFromPrefix(m.Prefix)

	c.mu.Lock()
	self := CaseFold(who) == CaseFold(c.nickname)
	if self {
		if _, exists := c.channels[CaseFold(channelName)]; !exists {
			c.channels[CaseFold(channelName)] = newChannel(channelName)
		}
	}
	ch := c.channels[CaseFold(channelName)]
	c.mu.Unlock()

	if !self {
		if ch != nil {
			ch.upsertParticipant(&Participant{Nickname: who})
		}
		if c.events.OnJoinChannel != nil {
			c.events.OnJoinChannel(c, channelName, who)
		}
	}
}

func (c *Client) handlePart(m *ircmsg.Message) {
	if len(m.Params) < 1 {
		return
	}
	channelName := m.Params[0]
	who := nickFromPrefix(m.Prefix)

	c.mu.Lock()
	self := CaseFold(who) == CaseFold(c.nickname)
	var ch *Channel
	if self {
		ch = c.channels[CaseFold(channelName)]
		delete(c.channels, CaseFold(channelName))
	} else {
		ch = c.channels[CaseFold(channelName)]
	}
	c.mu.Unlock()

	if !self {
		if ch != nil {
			ch.removeParticipant(who)
		}
		if c.events.OnPartChannel != nil {
			c.events.OnPartChannel(c, channelName, who)
		}
	}
}

func (c *Client) handlePrivmsg(m *ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	target, text := m.Params[0], m.Params[1]
	who := nickFromPrefix(m.Prefix)

	if CaseFold(target) == CaseFold(c.selfNick()) {
		if c.events.OnPersonalMessage != nil {
			c.events.OnPersonalMessage(c, who, text)
		}
		return
	}
	if c.events.OnChannelMessage != nil {
		c.events.OnChannelMessage(c, target, who, text)
	}
}

func (c *Client) handleNotice(m *ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	target, text := m.Params[0], m.Params[1]
	who := nickFromPrefix(m.Prefix)

	if target == "" || CaseFold(target) == CaseFold(c.selfNick()) || !c.isChannelName(target) {
		if c.events.OnChannelNotice != nil {
			c.events.OnChannelNotice(c, "", who, text)
		}
		return
	}
	if c.events.OnChannelNotice != nil {
		c.events.OnChannelNotice(c, target, who, text)
	}
}

func (c *Client) isChannelName(s string) bool {
	if s == "" {
		return false
	}
	c.mu.RLock()
	types := c.channelTypes
	c.mu.RUnlock()
	if len(types) == 0 {
		return s[0] == '#' || s[0] == '&'
	}
	for _, t := range types {
		if s[0] == t {
			return true
		}
	}
	return false
}

func (c *Client) handleWelcome(m *ircmsg.Message) {
	c.mu.Lock()
	c.connectBeginning = false
	if len(m.Params) > 0 {
		c.nickname = m.Params[0]
	}
	c.mu.Unlock()

	if c.events.OnConnect != nil {
		c.events.OnConnect(c)
	}
	if c.events.OnServerMessage != nil && len(m.Params) > 1 {
		c.events.OnServerMessage(c, m.Params[len(m.Params)-1])
	}
}

// handleISupport parses RPL_ISUPPORT (005) tokens (spec §4.3).
func (c *Client) handleISupport(m *ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	// Params: [nick, TOKEN1, TOKEN2, ..., trailing "are supported..."]
	tokens := m.Params[1 : len(m.Params)-1]

	for _, tok := range tokens {
		var name, value string
		if i := strings.IndexByte(tok, '='); i >= 0 {
			name, value = tok[:i], tok[i+1:]
		} else {
			name = tok
		}

		c.options.set(name, value)

		switch name {
		case "CHANTYPES":
			types := []byte(value)
			sort.Slice(types, func(a, b int) bool { return types[a] < types[b] })
			c.mu.Lock()
			c.channelTypes = types
			c.mu.Unlock()
		case "CHANMODES":
			c.mu.Lock()
			c.modeClasses.set(value)
			c.mu.Unlock()
		case "PREFIX":
			if pm, ok := parsePrefix(value); ok {
				c.mu.Lock()
				c.prefixes = pm
				c.mu.Unlock()
			}
		}
	}
}

func (c *Client) handleTopicMissing(m *ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	if ch, ok := c.Channel(m.Params[1]); ok {
		ch.mu.Lock()
		ch.Topic = ""
		ch.TopicSetter = ""
		ch.TopicSetTime = time.Time{}
		ch.mu.Unlock()
	}
}

func (c *Client) handleTopic(m *ircmsg.Message) {
	if len(m.Params) < 3 {
		return
	}
	if ch, ok := c.Channel(m.Params[1]); ok {
		ch.mu.Lock()
		ch.Topic = m.Params[2]
		ch.mu.Unlock()
	}
}

func (c *Client) handleTopicWhoTime(m *ircmsg.Message) {
	if len(m.Params) < 4 {
		return
	}
	if ch, ok := c.Channel(m.Params[1]); ok {
		epoch, _ := strconv.ParseInt(m.Params[3], 10, 64)
		ch.mu.Lock()
		ch.TopicSetter = m.Params[2]
		ch.TopicSetTime = time.Unix(epoch, 0)
		ch.mu.Unlock()
	}
}

// handleNames parses RPL_NAMREPLY (353): "<= | * | @> <channel> :<names>".
func (c *Client) handleNames(m *ircmsg.Message) {
	if len(m.Params) < 3 {
		return
	}
	accessivity := Accessivity(m.Params[1][0])
	channelName := m.Params[2]
	names := strings.Fields(m.Params[len(m.Params)-1])

	c.mu.Lock()
	ch, exists := c.channels[CaseFold(channelName)]
	if !exists {
		ch = newChannel(channelName)
		c.channels[CaseFold(channelName)] = ch
	}
	pm := c.prefixes
	c.mu.Unlock()

	ch.mu.Lock()
	ch.Accessivity = accessivity
	ch.mu.Unlock()

	for _, tok := range names {
		nick := tok
		var bits ModeBit
		for len(nick) > 0 {
			letter, ok := pm.symbolToLetter[nick[0]]
			if !ok {
				break
			}
			if bit, ok := pm.letterToBit[letter]; ok {
				bits |= bit
			}
			nick = nick[1:]
		}
		ch.upsertParticipant(&Participant{Nickname: nick, Modes: bits})
	}
}

// handleMode applies a MODE line to a channel's participants/settings
// (spec §4.3). Unknown letters consume an argument when the letter is in
// class A, B, or (when adding) C, or when it matches a prefix letter;
// class D consumes no argument.
func (c *Client) handleMode(m *ircmsg.Message) {
	if len(m.Params) < 2 {
		return
	}
	target := m.Params[0]
	if !c.isChannelName(target) {
		return // user modes aren't tracked per spec scope
	}

	ch, ok := c.Channel(target)
	if !ok {
		return
	}

	c.mu.RLock()
	classes := c.modeClasses
	pm := c.prefixes
	c.mu.RUnlock()

	modeStr := m.Params[1]
	args := m.Params[2:]
	argi := 0

	adding := true
	for i := 0; i < len(modeStr); i++ {
		letter := modeStr[i]
		switch letter {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}

		consumesArg := false
		if _, isPrefix := pm.letterToBit[letter]; isPrefix {
			consumesArg = true
		} else if class, ok := classes.classOf(letter); ok {
			switch class {
			case 0, 1: // A, B always take an argument
				consumesArg = true
			case 2: // C only takes an argument when setting
				consumesArg = adding
			case 3: // D never takes an argument
				consumesArg = false
			}
		}

		var arg string
		if consumesArg && argi < len(args) {
			arg = args[argi]
			argi++
		}

		if bit, isPrefix := pm.letterToBit[letter]; isPrefix && arg != "" {
			p, found := ch.Participant(arg)
			if found {
				p2 := *p
				if adding {
					p2.Modes |= bit
				} else {
					p2.Modes &^= bit
				}
				ch.upsertParticipant(&p2)
			}
			// Tolerant of unknown participants (spec §4.3).
		}
	}
}
