package ssh

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gossh "golang.org/x/crypto/ssh"
)

func testSigner(t *testing.T) gossh.Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	signer, err := gossh.NewSignerFromKey(key)
	require.NoError(t, err)
	return signer
}

// closedPort returns a host and config pointing at a port nothing listens on.
func closedPort(t *testing.T) (string, Config) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := listener.Addr().(*net.TCPAddr)
	listener.Close()

	return "127.0.0.1", Config{
		User:        "root",
		Port:        addr.Port,
		DialTimeout: 500 * time.Millisecond,
	}
}

// brokenServer accepts TCP connections and closes them immediately, so the
// SSH handshake always fails with a transport error.
func brokenServer(t *testing.T) (string, Config) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return "127.0.0.1", Config{
		User:        "root",
		Port:        addr.Port,
		DialTimeout: 500 * time.Millisecond,
	}
}

func TestReachableConditionHostDown(t *testing.T) {
	host, config := closedPort(t)
	cond := NewReachableCondition(config, testSigner(t), []string{host}, nil)

	up, err := cond.MemberHasCompleted(context.Background(), host)
	require.NoError(t, err)
	assert.False(t, up)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestReachableConditionHandshakeFailureIsNotYet(t *testing.T) {
	host, config := brokenServer(t)
	cond := NewReachableCondition(config, testSigner(t), []string{host}, nil)

	up, err := cond.MemberHasCompleted(context.Background(), host)
	require.NoError(t, err)
	assert.False(t, up)
}

func TestUnreachableConditionHostDown(t *testing.T) {
	host, config := closedPort(t)
	cond := NewUnreachableCondition(config, testSigner(t), []string{host}, nil)

	down, err := cond.MemberHasCompleted(context.Background(), host)
	require.NoError(t, err)
	assert.True(t, down)

	done, err := cond.HasCompleted(context.Background())
	require.NoError(t, err)
	assert.True(t, done)
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, isAuthFailure(errors.New("ssh: handshake failed: ssh: unable to authenticate")))
	assert.False(t, isAuthFailure(errors.New("dial tcp: connection refused")))
	assert.False(t, isAuthFailure(nil))
}

func TestConditionNames(t *testing.T) {
	hosts := []string{"ncn-w001", "ncn-w002"}
	config := Config{User: "root", Port: 22, DialTimeout: time.Second}
	signer := testSigner(t)

	reach := NewReachableCondition(config, signer, hosts, nil)
	assert.Equal(t, strconv.Itoa(len(hosts))+" hosts reachable over SSH", reach.ConditionName())

	unreach := NewUnreachableCondition(config, signer, hosts, nil)
	assert.Equal(t, strconv.Itoa(len(hosts))+" hosts unreachable over SSH", unreach.ConditionName())
}
