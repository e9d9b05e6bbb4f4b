package signing

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const (
	testPath = "/resources/sdkIntegrations/levels/-/websdkLink"
	testBody = `{"levelName":"basic-kyc"}`
	testTs   = int64(1700000000)
)

func TestComputeGoldenVector(t *testing.T) {
	sig := Compute([]byte("test-secret"), testTs, http.MethodPost, testPath, []byte(testBody))
	require.Equal(t, "df2c47cb8515db44481e9cb916365d25d5ceb530afff0209f33f0afc2cb85fb5", sig)
}

func TestComputeWithoutBody(t *testing.T) {
	sig := Compute([]byte("test-secret"), testTs, http.MethodGet, "/resources/status", nil)
	require.Equal(t, "87d737d6ee03f90e34680640fa4ff7ade78aa5f8653108923b4b68722d4e52fe", sig)
}

func TestComputeEmptySecretDoesNotFail(t *testing.T) {
	sig := Compute(nil, testTs, http.MethodGet, "/resources/status", nil)
	require.Equal(t, "4853638e24abe70328ce2dc13867c352d77ab842fa38a56ed470f72a0b35618d", sig)

	s := NewSigner("token", "")
	h := s.SignAt(testTs, http.MethodGet, "/resources/status", nil)
	require.Equal(t, sig, h.Signature)
}

func TestSignIsDeterministic(t *testing.T) {
	s := NewSigner("app-token", "test-secret")

	h1 := s.SignAt(testTs, http.MethodPost, testPath, []byte(testBody))
	h2 := s.SignAt(testTs, http.MethodPost, testPath, []byte(testBody))
	require.Equal(t, h1, h2)
	require.Equal(t, "app-token", h1.AppToken)
	require.Equal(t, testTs, h1.Timestamp)
	require.Equal(t, ContentTypeJSON, h1.ContentType)
}

func TestSignChangesWithEveryBodyByte(t *testing.T) {
	s := NewSigner("app-token", "test-secret")
	base := s.SignAt(testTs, http.MethodPost, testPath, []byte(testBody)).Signature

	body := []byte(testBody)
	for i := range body {
		mutated := append([]byte(nil), body...)
		mutated[i] ^= 0x01
		got := s.SignAt(testTs, http.MethodPost, testPath, mutated).Signature
		require.NotEqualf(t, base, got, "flipping byte %d did not change the signature", i)
	}
}

func TestSignBindsEveryInput(t *testing.T) {
	s := NewSigner("app-token", "test-secret")
	base := s.SignAt(testTs, http.MethodPost, testPath, []byte(testBody)).Signature

	require.NotEqual(t, base, s.SignAt(testTs+1, http.MethodPost, testPath, []byte(testBody)).Signature)
	require.NotEqual(t, base, s.SignAt(testTs, http.MethodGet, testPath, []byte(testBody)).Signature)
	require.NotEqual(t, base, s.SignAt(testTs, http.MethodPost, testPath+"x", []byte(testBody)).Signature)
	require.NotEqual(t, base, NewSigner("app-token", "other").SignAt(testTs, http.MethodPost, testPath, []byte(testBody)).Signature)
}

func TestSignUsesClock(t *testing.T) {
	s := NewSigner("app-token", "test-secret").WithClock(func() time.Time {
		return time.Unix(testTs, 999_000_000)
	})

	h := s.Sign(http.MethodPost, testPath, []byte(testBody))
	require.Equal(t, testTs, h.Timestamp)
	require.Equal(t, "df2c47cb8515db44481e9cb916365d25d5ceb530afff0209f33f0afc2cb85fb5", h.Signature)
}

func TestHeadersApply(t *testing.T) {
	h := NewSigner("app-token", "test-secret").SignAt(testTs, http.MethodPost, testPath, []byte(testBody))
	req := httptest.NewRequest(http.MethodPost, testPath, nil)

	h.Apply(req)

	require.Equal(t, "app-token", req.Header.Get(HeaderAppToken))
	require.Equal(t, h.Signature, req.Header.Get(HeaderSignature))
	require.Equal(t, "1700000000", req.Header.Get(HeaderTimestamp))
	require.Equal(t, "application/json", req.Header.Get("Content-Type"))
}
