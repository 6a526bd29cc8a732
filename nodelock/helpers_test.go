package nodelock

import (
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"
)

var (
	serverKey = sync.OnceValue(func() *rsa.PrivateKey { return mustKey(2048) })
	otherKey  = sync.OnceValue(func() *rsa.PrivateKey { return mustKey(2048) })
)

func mustKey(bits int) *rsa.PrivateKey {
	k, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		panic(err)
	}
	return k
}

// serverChannel returns a channel holding the test private key.
func serverChannel(t *testing.T) *Channel {
	t.Helper()
	ch, err := NewChannel(nil, WithPrivateKey(serverKey()))
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	return ch
}

// clientChannel returns a channel holding only the test public key.
func clientChannel(t *testing.T) *Channel {
	t.Helper()
	ch, err := NewChannel(&serverKey().PublicKey)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	return ch
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testHardware = map[string]string{
	"cpu.model":   "X1",
	"machine.id":  "4c4c4544-0042",
	"net.mac":     "00:11:22:33:44:55",
	"os.platform": "linux/amd64",
}

func staticEnv(hardware map[string]string, version *Version, now time.Time) StaticEnvironment {
	return StaticEnvironment{Hardware: hardware, Version: version, Clock: fixedClock(now)}
}

func versionPtr(s string) *Version {
	v := MustParseVersion(s)
	return &v
}
