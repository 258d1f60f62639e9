package user

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// A password reset link carries the user's encoded ID and a token "<issued>.<mac>":
// the issue time in base 36 unix seconds and an HMAC of the user's password hash and last login.
// Resetting the password or logging in voids every link issued before.

var (
	resetKeyPrefix = []byte("nexscholar/password-reset:")

	errInvalidToken = errors.New("invalid token")
	errTokenExpired = errors.New("token expired")
)

func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func decodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

type resetToken struct {
	issuedAt time.Time
	mac      []byte
}

func newResetToken(usr User, secretKey string, now time.Time) resetToken {
	issued := time.Unix(now.Unix(), 0).UTC()
	return resetToken{issuedAt: issued, mac: resetMAC(usr, secretKey, issued)}
}

func (t resetToken) String() string {
	return strconv.FormatInt(t.issuedAt.Unix(), 36) + "." + base64.RawURLEncoding.EncodeToString(t.mac)
}

func parseResetToken(s string) (resetToken, error) {
	issued, mac, ok := strings.Cut(s, ".")
	if !ok {
		return resetToken{}, errInvalidToken
	}
	secs, err := strconv.ParseInt(issued, 36, 64)
	if err != nil || secs <= 0 {
		return resetToken{}, errInvalidToken
	}
	sum, err := base64.RawURLEncoding.DecodeString(mac)
	if err != nil || len(sum) != sha256.Size {
		return resetToken{}, errInvalidToken
	}
	return resetToken{issuedAt: time.Unix(secs, 0).UTC(), mac: sum}, nil
}

func resetMAC(usr User, secretKey string, issued time.Time) []byte {
	key := append(append([]byte{}, resetKeyPrefix...), secretKey...)
	h := hmac.New(sha256.New, key)
	fmt.Fprintf(h, "%s|%d|", usr.ID, issued.Unix())
	h.Write(usr.PasswordHash)
	if !usr.LastLogin.IsZero() {
		fmt.Fprintf(h, "|%d", usr.LastLogin.Unix())
	}
	return h.Sum(nil)
}

func makeToken(usr User, secretKey string, now time.Time) string {
	return newResetToken(usr, secretKey, now).String()
}

// verifyToken checks `token` was issued for the current state of `usr` less than `timeout` ago.
func verifyToken(usr User, token, secretKey string, timeout time.Duration, now time.Time) error {
	t, err := parseResetToken(token)
	if err != nil {
		return err
	}
	if !hmac.Equal(t.mac, resetMAC(usr, secretKey, t.issuedAt)) {
		return errInvalidToken
	}
	if now.Sub(t.issuedAt) > timeout {
		return errTokenExpired
	}
	return nil
}
