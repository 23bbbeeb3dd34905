// Package ssh checks node reachability over SSH.
package ssh

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	gossh "golang.org/x/crypto/ssh"

	"github.com/Cray-HPE/sat-sub000/internal/common"
	"github.com/Cray-HPE/sat-sub000/pkg/waiting"
)

// Config holds the connection parameters shared by all SSH checks.
type Config struct {
	User        string
	KeyPath     string
	Port        int
	DialTimeout time.Duration
}

// LoadSigner reads and parses the private key at the given path.
func LoadSigner(path string) (gossh.Signer, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
	}

	signer, err := gossh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key %s: %w", path, err)
	}
	return signer, nil
}

// dialer dials hosts with the shared connection parameters.
type dialer struct {
	config Config
	signer gossh.Signer
}

func (d *dialer) dial(host string) (*gossh.Client, error) {
	clientConfig := &gossh.ClientConfig{
		User:            d.config.User,
		Auth:            []gossh.AuthMethod{gossh.PublicKeys(d.signer)},
		HostKeyCallback: gossh.InsecureIgnoreHostKey(),
		Timeout:         d.config.DialTimeout,
	}

	addr := net.JoinHostPort(host, strconv.Itoa(d.config.Port))
	return gossh.Dial("tcp", addr, clientConfig)
}

// probe dials the host and classifies the outcome: nil means the host is up,
// ErrHostUnreachable means it cannot be contacted, anything else is an
// authentication rejection, which still proves the host is up.
func (d *dialer) probe(host string) error {
	client, err := d.dial(host)
	if err != nil {
		if isAuthFailure(err) {
			return err
		}
		return common.NewHostUnreachableError(host, err.Error())
	}
	client.Close()
	return nil
}

// isAuthFailure reports whether the dial error is an authentication
// rejection rather than a transport problem. Auth failures do not resolve
// themselves and are treated as permanent.
func isAuthFailure(err error) bool {
	return err != nil && strings.Contains(err.Error(), "unable to authenticate")
}

// ReachableCondition is a group condition over hostnames that completes
// once every host accepts an SSH connection.
type ReachableCondition struct {
	dialer dialer
	hosts  []string
	logger *slog.Logger
}

// NewReachableCondition creates a reachability check over the given hosts.
func NewReachableCondition(config Config, signer gossh.Signer, hosts []string, logger *slog.Logger) *ReachableCondition {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReachableCondition{
		dialer: dialer{config: config, signer: signer},
		hosts:  hosts,
		logger: logger,
	}
}

// ConditionName implements waiting.Condition.
func (c *ReachableCondition) ConditionName() string {
	return fmt.Sprintf("%d hosts reachable over SSH", len(c.hosts))
}

// HasCompleted reports whether every host is reachable.
func (c *ReachableCondition) HasCompleted(ctx context.Context) (bool, error) {
	for _, host := range c.hosts {
		up, err := c.MemberHasCompleted(ctx, host)
		if err != nil {
			return false, err
		}
		if !up {
			return false, nil
		}
	}
	return true, nil
}

// MemberHasCompleted reports whether a single host accepts SSH connections.
func (c *ReachableCondition) MemberHasCompleted(_ context.Context, host string) (bool, error) {
	err := c.dialer.probe(host)
	switch {
	case err == nil:
		return true, nil
	case common.IsHostUnreachableError(err):
		c.logger.Debug("host not reachable over SSH", "host", host, "error", err)
		return false, nil
	default:
		return false, waiting.Failf("host %s rejected SSH credentials: %v", host, err)
	}
}

// UnreachableCondition is a group condition over hostnames that completes
// once every host stops accepting SSH connections, as during a shutdown.
type UnreachableCondition struct {
	dialer dialer
	hosts  []string
	logger *slog.Logger
}

// NewUnreachableCondition creates an unreachability check over the given hosts.
func NewUnreachableCondition(config Config, signer gossh.Signer, hosts []string, logger *slog.Logger) *UnreachableCondition {
	if logger == nil {
		logger = slog.Default()
	}
	return &UnreachableCondition{
		dialer: dialer{config: config, signer: signer},
		hosts:  hosts,
		logger: logger,
	}
}

// ConditionName implements waiting.Condition.
func (c *UnreachableCondition) ConditionName() string {
	return fmt.Sprintf("%d hosts unreachable over SSH", len(c.hosts))
}

// HasCompleted reports whether every host has gone down.
func (c *UnreachableCondition) HasCompleted(ctx context.Context) (bool, error) {
	for _, host := range c.hosts {
		down, err := c.MemberHasCompleted(ctx, host)
		if err != nil {
			return false, err
		}
		if !down {
			return false, nil
		}
	}
	return true, nil
}

// MemberHasCompleted reports whether a single host refuses SSH connections.
// An auth rejection still proves the host is up.
func (c *UnreachableCondition) MemberHasCompleted(_ context.Context, host string) (bool, error) {
	err := c.dialer.probe(host)
	switch {
	case err == nil:
		return false, nil
	case common.IsHostUnreachableError(err):
		return true, nil
	default:
		c.logger.Debug("host still up, SSH credentials rejected", "host", host)
		return false, nil
	}
}
