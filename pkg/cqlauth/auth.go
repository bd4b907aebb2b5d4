// Package cqlauth implements the SASL-style authenticators a Connection
// drives through AUTH_RESPONSE/AUTH_CHALLENGE/AUTH_SUCCESS, grounded on the
// same shape franz-go's sasl package uses for Kafka SASL mechanisms
// (an initial response plus a challenge/response loop), adapted to CQL's
// simpler single-exchange PasswordAuthenticator and the SCRAM family
// Cassandra's newer authenticators support.
package cqlauth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Authenticator drives one SASL-style exchange with the server's
// authenticator, named in the AUTHENTICATE response.
type Authenticator interface {
	// Name is the org.apache.cassandra.auth.* class name this implementation
	// answers for; used to pick an Authenticator out of a configured set by
	// matching against AuthenticateBody.AuthenticatorName.
	Name() string
	// InitialResponse returns the first AUTH_RESPONSE token.
	InitialResponse() ([]byte, error)
	// EvaluateChallenge returns the next response token for an
	// AUTH_CHALLENGE, or nil if the authenticator has nothing further to
	// send (the exchange should already be done at that point).
	EvaluateChallenge(challenge []byte) ([]byte, error)
}

// PasswordAuthenticator implements Cassandra's default
// PasswordAuthenticator: a single token of the form "\x00username\x00password".
type PasswordAuthenticator struct {
	Username, Password string
}

func (PasswordAuthenticator) Name() string { return "org.apache.cassandra.auth.PasswordAuthenticator" }

func (p PasswordAuthenticator) InitialResponse() ([]byte, error) {
	return []byte("\x00" + p.Username + "\x00" + p.Password), nil
}

func (PasswordAuthenticator) EvaluateChallenge([]byte) ([]byte, error) {
	return nil, errors.New("cqlauth: PasswordAuthenticator does not expect a challenge")
}

// ScramAuthenticator implements SCRAM-SHA-256 and answers for a server
// authenticator advertised as org.apache.cassandra.auth.SCRAMAuthenticator.
// Uses
// golang.org/x/crypto/pbkdf2 for key derivation, the same family of
// primitives a SCRAM client needs and the one already in the dependency
// graph via the teacher's SASL support.
type ScramAuthenticator struct {
	Username, Password string

	clientNonce string
	firstMsgBare string
	saltedPwd    []byte
	authMsg      string
}

func (ScramAuthenticator) Name() string { return "org.apache.cassandra.auth.SCRAMAuthenticator" }

func (s *ScramAuthenticator) InitialResponse() ([]byte, error) {
	s.clientNonce = randomNonce()
	s.firstMsgBare = fmt.Sprintf("n=%s,r=%s", saslPrep(s.Username), s.clientNonce)
	return []byte("n,," + s.firstMsgBare), nil
}

func (s *ScramAuthenticator) EvaluateChallenge(challenge []byte) ([]byte, error) {
	fields, err := parseSCRAM(string(challenge))
	if err != nil {
		return nil, err
	}
	serverNonce := fields["r"]
	if !strings.HasPrefix(serverNonce, s.clientNonce) {
		return nil, errors.New("cqlauth: scram server nonce does not extend client nonce")
	}
	salt, err := base64.StdEncoding.DecodeString(fields["s"])
	if err != nil {
		return nil, fmt.Errorf("cqlauth: scram salt: %w", err)
	}
	var iters int
	if _, err := fmt.Sscanf(fields["i"], "%d", &iters); err != nil {
		return nil, fmt.Errorf("cqlauth: scram iteration count: %w", err)
	}
	s.saltedPwd = pbkdf2.Key([]byte(s.Password), salt, iters, sha256.Size, sha256.New)

	channelBinding := base64.StdEncoding.EncodeToString([]byte("n,,"))
	clientFinalNoProof := "c=" + channelBinding + ",r=" + serverNonce
	s.authMsg = s.firstMsgBare + "," + string(challenge) + "," + clientFinalNoProof

	clientKey := hmacSum(s.saltedPwd, "Client Key")
	storedKey := sha256.Sum256(clientKey)
	clientSig := hmacSum(storedKey[:], s.authMsg)
	clientProof := xorBytes(clientKey, clientSig)

	resp := clientFinalNoProof + ",p=" + base64.StdEncoding.EncodeToString(clientProof)
	return []byte(resp), nil
}

// VerifyServerSignature checks the AUTH_SUCCESS token's server signature,
// so a Connection can reject a server that doesn't actually know the
// password (protects against a downgrade/MITM that skips verification).
func (s *ScramAuthenticator) VerifyServerSignature(successToken []byte) error {
	fields, err := parseSCRAM(string(successToken))
	if err != nil {
		return err
	}
	serverSigB64, ok := fields["v"]
	if !ok {
		return errors.New("cqlauth: scram success token missing server signature")
	}
	wantSig, err := base64.StdEncoding.DecodeString(serverSigB64)
	if err != nil {
		return err
	}
	serverKey := hmacSum(s.saltedPwd, "Server Key")
	gotSig := hmacSum(serverKey, s.authMsg)
	if !hmac.Equal(wantSig, gotSig) {
		return errors.New("cqlauth: scram server signature mismatch")
	}
	return nil
}

func hmacSum(key []byte, msg string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(msg))
	return h.Sum(nil)
}

func xorBytes(a, b []byte) []byte {
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out
}

func randomNonce() string {
	var b [18]byte
	_, _ = rand.Read(b[:])
	return base64.RawStdEncoding.EncodeToString(b[:])
}

func saslPrep(s string) string {
	s = strings.ReplaceAll(s, "=", "=3D")
	s = strings.ReplaceAll(s, ",", "=2C")
	return s
}

func parseSCRAM(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("cqlauth: malformed scram field %q", part)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}
