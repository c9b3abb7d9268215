// Copyright (C) 2025, Tavari Media Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenSourceSingleFlight(t *testing.T) {
	var refreshes int64
	ts := NewTokenSource(func(ctx context.Context) (string, time.Time, error) {
		atomic.AddInt64(&refreshes, 1)
		time.Sleep(20 * time.Millisecond) // hold the flight open
		return "tok-1", time.Now().Add(time.Hour), nil
	})

	const callers = 25
	tokens := make([]string, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			tok, err := ts.Token(context.Background())
			require.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, atomic.LoadInt64(&refreshes),
		"concurrent callers must share one refresh")
	for _, tok := range tokens {
		assert.Equal(t, "tok-1", tok)
	}
}

func TestTokenSourceRefreshesBeforeExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	seq := 0
	ts := NewTokenSource(func(ctx context.Context) (string, time.Time, error) {
		seq++
		return map[int]string{1: "first", 2: "second"}[seq], now.Add(time.Minute), nil
	})
	ts.now = func() time.Time { return now }

	tok, err := ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", tok)
	assert.True(t, ts.Valid())

	// Within the slack window the token counts as expired even though
	// the wall clock says otherwise.
	now = now.Add(time.Minute - tokenSlack)
	assert.False(t, ts.Valid())

	tok, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", tok)
}

func TestTokenSourceInvalidate(t *testing.T) {
	seq := 0
	ts := NewTokenSource(func(ctx context.Context) (string, time.Time, error) {
		seq++
		return "tok", time.Now().Add(time.Hour), nil
	})

	_, err := ts.Token(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, seq)

	ts.Invalidate()
	assert.False(t, ts.Valid())

	_, err = ts.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
}

func TestClientCredentialsRefresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.FormValue("grant_type"))
		assert.Equal(t, "id-1", r.FormValue("client_id"))
		assert.Equal(t, "secret-1", r.FormValue("client_secret"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"granted","token_type":"Bearer","expires_in":120}`))
	}))
	defer srv.Close()

	refresh := clientCredentialsRefresh(srv.Client(), srv.URL, "id-1", "secret-1")
	tok, expiry, err := refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "granted", tok)
	assert.WithinDuration(t, time.Now().Add(2*time.Minute), expiry, 5*time.Second)
}

func TestClientCredentialsRefreshRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	refresh := clientCredentialsRefresh(srv.Client(), srv.URL, "id", "bad")
	_, _, err := refresh(context.Background())
	require.Error(t, err)
}
