package server

import (
	"relaychat/internal/authfile"
	"relaychat/internal/protocol"
	"relaychat/internal/roster"
	"relaychat/internal/wire"
)

// handshake drives one connection through AUTH_WAIT and NAME_WAIT (spec
// §4.2-§4.5). It returns the joined Entry and true on success, or false if
// the stream ended, the secret was rejected, or a write failed before the
// session reached ACTIVE — in every false case the roster has no trace of
// the connection left behind.
func (s *Server) handshake(conn *wire.Conn) (*roster.Entry, bool) {
	if err := conn.WriteLine(protocol.EncodeEmpty(protocol.Auth)); err != nil {
		return nil, false
	}
	line, err := conn.ReadLine()
	if err != nil {
		return nil, false
	}
	rec := protocol.Parse(line)
	if rec.Tag == protocol.Auth {
		s.Roster.BumpAuth()
	}
	if s.secret != authfile.NoAuth && rec.Payload != s.secret {
		return nil, false
	}
	if err := conn.WriteLine(protocol.EncodeEmpty(protocol.OK)); err != nil {
		return nil, false
	}

	for {
		if err := conn.WriteLine(protocol.EncodeEmpty(protocol.Who)); err != nil {
			return nil, false
		}
		line, err := conn.ReadLine()
		if err != nil {
			return nil, false
		}
		rec := protocol.Parse(line)
		if rec.Tag == protocol.Name {
			s.Roster.BumpName()
		}

		entry, collided := s.Roster.Join(s.Stdout, rec.Payload, conn)
		if entry == nil {
			if !collided {
				// Candidate was accepted but the OK write failed; Join
				// already rolled the insertion back.
				return nil, false
			}
			if err := conn.WriteLine(protocol.EncodeEmpty(protocol.NameTaken)); err != nil {
				return nil, false
			}
			continue
		}
		return entry, true
	}
}

// sessionLoop dispatches ACTIVE-phase records (spec §4.6) until the stream
// ends, the client sends LEAVE, or the client kicks itself.
func (s *Server) sessionLoop(conn *wire.Conn, e *roster.Entry) {
	for {
		line, err := conn.ReadLine()
		if err != nil {
			s.Roster.Disconnect(s.Stdout, e)
			return
		}
		rec := protocol.Parse(line)
		switch rec.Tag {
		case protocol.Say:
			s.Roster.Say(s.Stdout, e, rec.Payload)
		case protocol.List:
			names := s.Roster.List(e)
			_ = conn.WriteLine(protocol.Encode(protocol.List, names))
		case protocol.Kick:
			if s.Roster.Kick(s.Stdout, e, rec.Payload) {
				return
			}
		case protocol.Leave:
			s.Roster.Leave(s.Stdout, e)
			return
		default:
			// Unrecognized tag: spec defines no behaviour for it, so it is
			// silently dropped and the session keeps reading.
		}
	}
}
