package transport

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/bhandras/devpanel/internal/protocol/wire"
	"github.com/bhandras/devpanel/pkg/logger"
	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

// Sealed wraps a Messenger and encrypts message bodies with NaCl secretbox
// (XSalsa20-Poly1305). Type and ID travel in the clear so routing and
// correlation still work; Payload and Params are replaced by a JSON string
// holding base64([nonce][box]).
//
// Inbound messages that fail to open are logged and dropped.
type Sealed struct {
	inner  Messenger
	key    *[32]byte
	router Router
	sub    SubscriptionID
}

var _ Messenger = (*Sealed)(nil)

// NewSealed wraps inner. Both ends must share key.
func NewSealed(inner Messenger, key *[32]byte) *Sealed {
	s := &Sealed{inner: inner, key: key}
	s.sub = inner.Subscribe(Wildcard, s.receive)
	return s
}

// Send implements Messenger.
func (s *Sealed) Send(msg wire.Message) error {
	var err error
	if msg.Payload, err = seal(msg.Payload, s.key); err != nil {
		return err
	}
	if msg.Params, err = seal(msg.Params, s.key); err != nil {
		return err
	}
	return s.inner.Send(msg)
}

// Subscribe implements Messenger.
func (s *Sealed) Subscribe(pattern string, h Handler) SubscriptionID {
	return s.router.Subscribe(pattern, h)
}

// Unsubscribe implements Messenger.
func (s *Sealed) Unsubscribe(id SubscriptionID) {
	s.router.Unsubscribe(id)
}

// Detach stops listening on the wrapped messenger.
func (s *Sealed) Detach() {
	s.inner.Unsubscribe(s.sub)
}

func (s *Sealed) receive(msg wire.Message) {
	var err error
	if msg.Payload, err = open(msg.Payload, s.key); err != nil {
		logger.Warnf("transport: dropping %s: %v", msg.Type, err)
		return
	}
	if msg.Params, err = open(msg.Params, s.key); err != nil {
		logger.Warnf("transport: dropping %s: %v", msg.Type, err)
		return
	}
	s.router.Deliver(msg)
}

func seal(plain json.RawMessage, key *[32]byte) (json.RawMessage, error) {
	if len(plain) == 0 {
		return nil, nil
	}
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, key)
	return json.Marshal(base64.StdEncoding.EncodeToString(box))
}

func open(sealed json.RawMessage, key *[32]byte) (json.RawMessage, error) {
	if len(sealed) == 0 {
		return nil, nil
	}
	var encoded string
	if err := json.Unmarshal(sealed, &encoded); err != nil {
		return nil, fmt.Errorf("%w: not a sealed string", ErrSealed)
	}
	box, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSealed, err)
	}
	if len(box) < nonceSize {
		return nil, fmt.Errorf("%w: too short", ErrSealed)
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, key)
	if !ok {
		return nil, fmt.Errorf("%w: authentication failed", ErrSealed)
	}
	return plain, nil
}

// ParseKey decodes a base64 secretbox key.
func ParseKey(encoded string) (*[32]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}
