package main

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nickyhof/TreeDB/core"
	"github.com/nickyhof/TreeDB/db"
	"github.com/nickyhof/TreeDB/wire"
)

// ConnectionState tracks one client connection. Each connection owns an
// engine over its own session, so checkouts and transactions stay private.
type ConnectionState struct {
	id         uuid.UUID
	engine     *db.Engine
	identified bool
	log        logrus.FieldLogger
}

// isIdentifyCommand reports whether line is an IDENTIFY command.
func isIdentifyCommand(line string) bool {
	fields := strings.Fields(line)
	return len(fields) > 0 && strings.EqualFold(fields[0], "IDENTIFY")
}

// parseIdentifyCommand parses "IDENTIFY Name <email>" or "IDENTIFY email".
func parseIdentifyCommand(line string) (core.Identity, error) {
	rest := strings.TrimSpace(line)
	if len(rest) < len("IDENTIFY") {
		return core.Identity{}, fmt.Errorf("%w: expected IDENTIFY <name> <email>", core.ErrInvalidArgument)
	}
	rest = strings.TrimSpace(rest[len("IDENTIFY"):])
	if rest == "" {
		return core.Identity{}, fmt.Errorf("%w: expected IDENTIFY <name> <email>", core.ErrInvalidArgument)
	}

	addr, err := mail.ParseAddress(rest)
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: invalid identity %q: %v", core.ErrInvalidArgument, rest, err)
	}
	name := addr.Name
	if name == "" {
		name, _, _ = strings.Cut(addr.Address, "@")
	}
	return core.Identity{Name: name, Email: addr.Address}, nil
}

// handleIdentify sets the author of the connection's commits.
func (s *Server) handleIdentify(line string, state *ConnectionState) wire.Response {
	identity, err := parseIdentifyCommand(line)
	if err != nil {
		return wire.Failure(err)
	}
	state.engine.Identity = identity
	state.identified = true
	state.log.WithField("identity", identity.Email).Info("client identified")
	return wire.Success(wire.IdentityType, wire.IdentityResponse{
		Identity: fmt.Sprintf("%s <%s>", identity.Name, identity.Email),
	})
}
