package testutil

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nexscholar/nexscholar/core/user"
)

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	if roles == nil {
		roles = []string{}
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		Roles:     roles,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

// Clock is a settable time source for services exposing WithClock.
type Clock struct {
	T time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{T: t}
}

func (c *Clock) Now() time.Time {
	return c.T
}

func (c *Clock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// KeywordEmbedder embeds a text as the counts of each of its keywords; the vector size is the
// number of keywords. Texts containing FailOn make the whole call fail.
type KeywordEmbedder struct {
	Keywords []string
	FailOn   string
	Calls    int
}

func NewKeywordEmbedder(keywords ...string) *KeywordEmbedder {
	return &KeywordEmbedder{Keywords: keywords}
}

func (e *KeywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.Calls++
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		text = strings.ToLower(text)
		if e.FailOn != "" && strings.Contains(text, strings.ToLower(e.FailOn)) {
			return nil, fmt.Errorf("embedding failed on %q", e.FailOn)
		}
		vec := make([]float32, len(e.Keywords))
		for j, kw := range e.Keywords {
			vec[j] = float32(strings.Count(text, strings.ToLower(kw)))
		}
		vectors[i] = vec
	}
	return vectors, nil
}
