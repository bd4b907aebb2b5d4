package cqlauth

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/pbkdf2"
)

func TestPasswordAuthenticatorInitialResponse(t *testing.T) {
	a := PasswordAuthenticator{Username: "alice", Password: "s3cr3t"}
	tok, err := a.InitialResponse()
	if err != nil {
		t.Fatalf("InitialResponse: %v", err)
	}
	want := "\x00alice\x00s3cr3t"
	if string(tok) != want {
		t.Fatalf("got %q, want %q", tok, want)
	}
}

func TestPasswordAuthenticatorRejectsChallenge(t *testing.T) {
	a := PasswordAuthenticator{}
	if _, err := a.EvaluateChallenge([]byte("anything")); err == nil {
		t.Fatalf("expected an error, PasswordAuthenticator has no challenge step")
	}
}

// fakeScramServer mirrors just enough of a SCRAM-SHA-256 server to drive
// ScramAuthenticator through a full exchange and check the client's math
// against an independently computed stored key / server signature.
type fakeScramServer struct {
	username     string
	salt         []byte
	iters        int
	saltedPwd    []byte
	clientNonce  string
	serverNonce  string
	firstMsgBare string
	challenge    string
}

func newFakeScramServer(password string, salt []byte, iters int) *fakeScramServer {
	return &fakeScramServer{salt: salt, iters: iters, saltedPwd: pbkdf2.Key([]byte(password), salt, iters, sha256.Size, sha256.New)}
}

func (s *fakeScramServer) handleFirst(firstMsg string) []byte {
	const prefix = "n,,"
	bare := strings.TrimPrefix(firstMsg, prefix)
	s.firstMsgBare = bare
	fields, _ := parseSCRAM(bare)
	s.clientNonce = fields["r"]
	s.serverNonce = s.clientNonce + "-server-extension"
	s.challenge = fmt.Sprintf("r=%s,s=%s,i=%d", s.serverNonce, base64.StdEncoding.EncodeToString(s.salt), s.iters)
	return []byte(s.challenge)
}

func (s *fakeScramServer) handleFinal(finalMsg string) (success []byte, ok bool) {
	fields, _ := parseSCRAM(finalMsg)
	clientProof, err := base64.StdEncoding.DecodeString(fields["p"])
	if err != nil {
		return nil, false
	}
	clientFinalNoProof := "c=" + fields["c"] + ",r=" + fields["r"]
	authMsg := s.firstMsgBare + "," + s.challenge + "," + clientFinalNoProof

	clientKey := hmacSum(s.saltedPwd, "Client Key")
	storedKey := sha256.Sum256(clientKey)
	clientSig := hmacSum(storedKey[:], authMsg)
	wantProof := xorBytes(clientKey, clientSig)
	if !hmac.Equal(clientProof, wantProof) {
		return nil, false
	}

	serverKey := hmacSum(s.saltedPwd, "Server Key")
	serverSig := hmacSum(serverKey, authMsg)
	success = []byte("v=" + base64.StdEncoding.EncodeToString(serverSig))
	return success, true
}

func TestScramAuthenticatorFullExchange(t *testing.T) {
	const password = "hunter2"
	salt := bytes.Repeat([]byte{0x42}, 16)
	server := newFakeScramServer(password, salt, 4096)

	client := &ScramAuthenticator{Username: "bob", Password: password}
	first, err := client.InitialResponse()
	if err != nil {
		t.Fatalf("InitialResponse: %v", err)
	}
	if !strings.HasPrefix(string(first), "n,,n=bob,r=") {
		t.Fatalf("unexpected first message shape: %q", first)
	}

	challenge := server.handleFirst(string(first))
	final, err := client.EvaluateChallenge(challenge)
	if err != nil {
		t.Fatalf("EvaluateChallenge: %v", err)
	}

	success, ok := server.handleFinal(string(final))
	if !ok {
		t.Fatalf("server rejected client proof")
	}
	if err := client.VerifyServerSignature(success); err != nil {
		t.Fatalf("VerifyServerSignature: %v", err)
	}
}

func TestScramAuthenticatorRejectsBadServerSignature(t *testing.T) {
	const password = "hunter2"
	salt := bytes.Repeat([]byte{0x7}, 16)
	server := newFakeScramServer(password, salt, 4096)

	client := &ScramAuthenticator{Username: "carol", Password: password}
	first, _ := client.InitialResponse()
	challenge := server.handleFirst(string(first))
	final, err := client.EvaluateChallenge(challenge)
	if err != nil {
		t.Fatalf("EvaluateChallenge: %v", err)
	}
	if _, ok := server.handleFinal(string(final)); !ok {
		t.Fatalf("server unexpectedly rejected a valid proof")
	}

	forged := []byte("v=" + base64.StdEncoding.EncodeToString(bytes.Repeat([]byte{0xFF}, sha256.Size)))
	if err := client.VerifyServerSignature(forged); err == nil {
		t.Fatalf("expected a mismatch error for a forged server signature")
	}
}

func TestScramAuthenticatorRejectsNonExtendingServerNonce(t *testing.T) {
	client := &ScramAuthenticator{Username: "dave", Password: "pw"}
	if _, err := client.InitialResponse(); err != nil {
		t.Fatalf("InitialResponse: %v", err)
	}
	badChallenge := "r=not-the-client-nonce,s=" + base64.StdEncoding.EncodeToString([]byte("salt")) + ",i=4096"
	if _, err := client.EvaluateChallenge([]byte(badChallenge)); err == nil {
		t.Fatalf("expected rejection of a server nonce that doesn't extend the client nonce")
	}
}

func TestSaslPrepEscapesReservedChars(t *testing.T) {
	if got := saslPrep("a=b,c"); got != "a=3Db=2Cc" {
		t.Fatalf("got %q", got)
	}
}
